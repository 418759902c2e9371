package core

import (
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// ReceiptStatus is the delivery state of a sent packet.
type ReceiptStatus uint8

const (
	ReceiptFailed ReceiptStatus = iota
	ReceiptSent
	ReceiptDelivered
	ReceiptCulled
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptFailed:
		return "failed"
	case ReceiptSent:
		return "sent"
	case ReceiptDelivered:
		return "delivered"
	case ReceiptCulled:
		return "culled"
	}
	return "unknown"
}

const (
	// FirstHopTimeout is added to every receipt timeout.
	FirstHopTimeout = 6 * time.Second
	// TimeoutPerHop is the receipt timeout per hop to the destination.
	TimeoutPerHop = 6 * time.Second
)

// Receipt tracks the proof of delivery for one packet sent to a single
// destination.
type Receipt struct {
	core        *Core
	hash        []byte
	proofDest   address.Hash
	destination address.Hash
	identity    *identity.Identity
	mutex       sync.Mutex
	status      ReceiptStatus
	sentAt      time.Time
	concludedAt time.Time
	timeout     time.Duration
	delivered   func(*Receipt)
	timedOut    func(*Receipt)
}

func newReceipt(c *Core, p *packet.Packet, id *identity.Identity, timeout time.Duration) *Receipt {
	return &Receipt{
		core:        c,
		hash:        p.Hash(),
		proofDest:   p.ProofDestination(),
		destination: p.DestinationHash,
		identity:    id,
		status:      ReceiptSent,
		sentAt:      c.now(),
		timeout:     timeout,
	}
}

// Hash is the full hash of the packet the receipt is for.
func (r *Receipt) Hash() []byte { return append([]byte(nil), r.hash...) }

// Destination is where the packet was sent.
func (r *Receipt) Destination() address.Hash { return r.destination }

func (r *Receipt) Status() ReceiptStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}

// RTT is the time between sending and receiving the proof. It is zero until
// the packet is delivered.
func (r *Receipt) RTT() time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != ReceiptDelivered {
		return 0
	}
	return r.concludedAt.Sub(r.sentAt)
}

// SetTimeout changes how long to wait for a proof.
func (r *Receipt) SetTimeout(d time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.timeout = d
}

// SetDeliveryCallback registers fn to run once the proof arrives. If it has
// already arrived, fn is scheduled right away.
func (r *Receipt) SetDeliveryCallback(fn func(*Receipt)) {
	r.mutex.Lock()
	r.delivered = fn
	done := r.status == ReceiptDelivered
	r.mutex.Unlock()
	if done && fn != nil {
		r.core.callback(func() { fn(r) })
	}
}

// SetTimeoutCallback registers fn to run if no proof arrives in time.
func (r *Receipt) SetTimeoutCallback(fn func(*Receipt)) {
	r.mutex.Lock()
	r.timedOut = fn
	done := r.status == ReceiptFailed || r.status == ReceiptCulled
	r.mutex.Unlock()
	if done && fn != nil {
		r.core.callback(func() { fn(r) })
	}
}

// validateProof checks proof data against the receipt. A valid proof
// concludes the receipt as delivered.
func (r *Receipt) validateProof(data []byte, now time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != ReceiptSent {
		return false
	}
	id := r.identity
	if id == nil {
		if id = r.core.Recall(r.destination); id == nil {
			return false
		}
		r.identity = id
	}
	if !id.ValidateProof(data, r.hash) {
		return false
	}
	r.status = ReceiptDelivered
	r.concludedAt = now
	if fn := r.delivered; fn != nil {
		r.core.callback(func() { fn(r) })
	}
	return true
}

func (r *Receipt) expired(now time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status == ReceiptSent && now.Sub(r.sentAt) > r.timeout
}

func (r *Receipt) concluded() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status != ReceiptSent
}

// fail concludes the receipt without delivery.
func (r *Receipt) fail(status ReceiptStatus, now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != ReceiptSent {
		return
	}
	r.status = status
	r.concludedAt = now
	if fn := r.timedOut; fn != nil {
		r.core.callback(func() { fn(r) })
	}
}
