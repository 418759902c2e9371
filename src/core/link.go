package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// LinkStatus is the state of a link. It only moves forward, except that a
// stale link returns to active when traffic arrives.
type LinkStatus uint8

const (
	LinkPending LinkStatus = iota
	LinkHandshake
	LinkActive
	LinkStale
	LinkClosed
)

func (s LinkStatus) String() string {
	switch s {
	case LinkPending:
		return "pending"
	case LinkHandshake:
		return "handshake"
	case LinkActive:
		return "active"
	case LinkStale:
		return "stale"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// TeardownReason records why a link closed.
type TeardownReason uint8

const (
	ReasonNone TeardownReason = iota
	ReasonTimeout
	ReasonInitiatorClosed
	ReasonDestinationClosed
)

func (r TeardownReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonInitiatorClosed:
		return "initiator closed"
	case ReasonDestinationClosed:
		return "destination closed"
	}
	return "none"
}

const (
	// LinkMDU is the largest plaintext a single link packet carries.
	LinkMDU = (packet.MTU-packet.IFACMinSize-packet.HeaderMinSize-crypto.TokenOverhead)/crypto.PKCS7BlockSize*crypto.PKCS7BlockSize - 1
	// LinkKeySize is the size of the public key pair in a link request.
	LinkKeySize = crypto.X25519KeySize + crypto.Ed25519PublicKeySize
	// LinkDerivedKeySize is the size of the key material derived for a
	// link, which selects the AES-256 token.
	LinkDerivedKeySize = 64

	// EstablishmentTimeoutPerHop bounds the handshake per hop.
	EstablishmentTimeoutPerHop = 6 * time.Second
	// KeepaliveInterval is how often an idle initiator sends a keepalive.
	// Either side answers a keepalive request.
	KeepaliveInterval = 360 * time.Second
	// StaleTime is how long a link may go without inbound traffic before it
	// is considered stale.
	StaleTime = 2 * KeepaliveInterval
	// KeepaliveTimeoutFactor scales the RTT when waiting for a stale link
	// to recover.
	KeepaliveTimeoutFactor = 4
	// StaleGrace is added to the recovery wait of a stale link.
	StaleGrace = 5 * time.Second

	keepaliveRequest  = 0xFF
	keepaliveResponse = 0xFE
	lrProofLength     = crypto.Ed25519SignatureSize + crypto.X25519KeySize
)

type linkError string

func (e linkError) Error() string { return string(e) }

const ErrLinkNotActive = linkError("link is not active")
const ErrLinkIDSet = linkError("link id is already set")
const ErrLinkDestination = linkError("links can only be made to outbound single destinations")
const ErrLinkTooLarge = linkError("data exceeds the link MDU")
const ErrNotInitiator = linkError("only the initiator can identify on a link")

// LinkCallbacks are the initiator's hooks on a new link. All run on the
// callback actor.
type LinkCallbacks struct {
	Established func(*Link)
	Closed      func(*Link)
	Packet      func(data []byte, l *Link)
}

// Link is an encrypted session with a remote destination.
type Link struct {
	core        *Core
	destination *Destination
	initiator   bool
	mutex       sync.Mutex
	id          address.Hash
	idSet       bool
	status      LinkStatus
	reason      TeardownReason
	prvX        *crypto.X25519PrivateKey
	prvSig      *crypto.Ed25519PrivateKey
	pubX        *crypto.X25519PublicKey
	peerPubX    *crypto.X25519PublicKey
	peerPubSig  *crypto.Ed25519PublicKey
	token       *crypto.Token
	attached    Interface
	hops        uint8
	rtt         time.Duration
	timeout     time.Duration
	requestedAt time.Time
	activatedAt time.Time
	lastInbound time.Time
	lastSent    time.Time
	lastPing    time.Time
	staleAt     time.Time
	rxPackets   uint64
	txPackets   uint64
	remote      *identity.Identity
	callbacks   LinkCallbacks
	onIdentify  func(*Link, *identity.Identity)
}

// NewLink starts establishing a link to an outbound single destination.
// The returned link is pending until the proof arrives.
func (c *Core) NewLink(dest *Destination, callbacks LinkCallbacks) (*Link, error) {
	if dest == nil || dest.typ != packet.Single || dest.direction != DirectionOut {
		return nil, ErrLinkDestination
	}
	l := &Link{
		core:        c,
		destination: dest,
		initiator:   true,
		status:      LinkPending,
		prvX:        crypto.GenerateX25519(),
		prvSig:      crypto.GenerateEd25519(),
		callbacks:   callbacks,
	}
	l.pubX = l.prvX.Public()
	data := append(l.pubX.Bytes(), l.prvSig.Public().Bytes()...)
	p := packet.New(dest.hash, packet.Single, packet.TypeLinkRequest, packet.ContextNone, data)
	if err := p.Pack(); err != nil {
		return nil, err
	}
	if err := l.setLinkID(p); err != nil {
		return nil, err
	}
	t := c.transport
	t.Act(nil, func() {
		now := c.now()
		hops := t._hopsTo(dest.hash)
		if hops == PathfinderM {
			hops = 1
		}
		l.mutex.Lock()
		l.requestedAt = now
		l.lastInbound = now
		l.timeout = EstablishmentTimeoutPerHop * time.Duration(max(hops, 1))
		l.mutex.Unlock()
		t.links[l.id] = l
		t._outbound(p)
		t.log.Debugf("Requested link %s to %s", l.id, dest)
	})
	return l, nil
}

// setLinkID derives the link id from the link request. It can only happen
// once.
func (l *Link) setLinkID(p *packet.Packet) error {
	if l.idSet {
		return ErrLinkIDSet
	}
	l.id = p.TruncatedHash()
	l.idSet = true
	return nil
}

// validateRequest builds the responder side of a link from a link request
// for one of our destinations. The returned link is in handshake state and
// the returned proof must be sent back on the interface the request came
// from.
func validateRequest(c *Core, d *Destination, p *packet.Packet) (*Link, *packet.Packet, error) {
	data := p.Data.Bytes()
	if len(data) != LinkKeySize {
		return nil, nil, fmt.Errorf("link request of %d bytes", len(data))
	}
	peerPubX, err := crypto.X25519PublicKeyFromBytes(data[:crypto.X25519KeySize])
	if err != nil {
		return nil, nil, err
	}
	peerPubSig, err := crypto.Ed25519PublicKeyFromBytes(data[crypto.X25519KeySize:])
	if err != nil {
		return nil, nil, err
	}
	now := c.now()
	l := &Link{
		core:        c,
		destination: d,
		status:      LinkPending,
		prvX:        crypto.GenerateX25519(),
		peerPubX:    peerPubX,
		peerPubSig:  peerPubSig,
		hops:        p.Hops,
		requestedAt: now,
		lastInbound: now,
		timeout:     EstablishmentTimeoutPerHop * time.Duration(max(p.Hops, 1)),
	}
	l.pubX = l.prvX.Public()
	if iface, ok := p.ReceivingInterface.(Interface); ok {
		l.attached = iface
	}
	if err := l.setLinkID(p); err != nil {
		return nil, nil, err
	}
	if err := l.handshake(); err != nil {
		return nil, nil, err
	}
	signed := l.signedProofData(l.pubX.Bytes(), d.identity.SigningPublicKey().Bytes())
	sig, err := d.identity.Sign(signed)
	if err != nil {
		return nil, nil, err
	}
	proof := packet.New(l.id, packet.Link, packet.TypeProof, packet.ContextLRProof, append(sig, l.pubX.Bytes()...))
	proof.AttachedInterface = p.ReceivingInterface
	if err := proof.Pack(); err != nil {
		return nil, nil, err
	}
	l.status = LinkHandshake
	return l, proof, nil
}

func (l *Link) signedProofData(pubX, sigPub []byte) []byte {
	out := make([]byte, 0, address.Length+len(pubX)+len(sigPub))
	out = append(out, l.id[:]...)
	out = append(out, pubX...)
	return append(out, sigPub...)
}

// handshake derives the session token from the ephemeral exchange.
func (l *Link) handshake() error {
	shared, err := l.prvX.Exchange(l.peerPubX)
	if err != nil {
		return err
	}
	key, err := crypto.HKDF(LinkDerivedKeySize, shared, l.id[:], nil)
	if err != nil {
		return err
	}
	token, err := crypto.NewToken(key)
	if err != nil {
		return err
	}
	l.token = token
	return nil
}

// _validateProof completes the initiator side when the link proof arrives.
func (l *Link) _validateProof(p *packet.Packet) {
	t := l.core.transport
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.status != LinkPending {
		return
	}
	data := p.Data.Bytes()
	if len(data) != lrProofLength {
		t.log.Debugf("Dropped link proof for %s: bad length %d", l.id, len(data))
		return
	}
	peerPubX, err := crypto.X25519PublicKeyFromBytes(data[crypto.Ed25519SignatureSize:])
	if err != nil {
		return
	}
	destID := l.destination.identity
	signed := l.signedProofData(peerPubX.Bytes(), destID.SigningPublicKey().Bytes())
	if !destID.Validate(data[:crypto.Ed25519SignatureSize], signed) {
		t.log.Debugf("Dropped link proof for %s: invalid signature", l.id)
		return
	}
	l.peerPubX = peerPubX
	l.peerPubSig = destID.SigningPublicKey()
	if err := l.handshake(); err != nil {
		t.log.Debugf("Dropped link proof for %s: %v", l.id, err)
		return
	}
	now := l.core.now()
	l.rtt = now.Sub(l.requestedAt)
	l.status = LinkActive
	l.activatedAt = now
	l.lastInbound = now
	l.hops = p.Hops
	if iface, ok := p.ReceivingInterface.(Interface); ok {
		l.attached = iface
	}
	var rtt [8]byte
	binary.BigEndian.PutUint64(rtt[:], math.Float64bits(l.rtt.Seconds()))
	if rttPacket, err := l._packet(packet.ContextLRRTT, l.token.Encrypt(rtt[:])); err == nil {
		t._outbound(rttPacket)
	}
	t.log.Debugf("Link %s established with %s, rtt %s", l.id, l.destination, l.rtt)
	l.core.callback(func() {
		if fn := l.callbacks.Established; fn != nil {
			fn(l)
		}
	})
}

// _packet builds a packet on the link. The caller holds the mutex.
func (l *Link) _packet(context packet.Context, data []byte) (*packet.Packet, error) {
	p := packet.New(l.id, packet.Link, packet.TypeData, context, data)
	p.AttachedInterface = l.attached
	if err := p.Pack(); err != nil {
		return nil, err
	}
	l.lastSent = l.core.now()
	l.txPackets++
	return p, nil
}

// _receive handles a data packet addressed to the link.
func (l *Link) _receive(p *packet.Packet) {
	t := l.core.transport
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.status == LinkClosed || l.token == nil {
		return
	}
	now := l.core.now()
	switch p.Context {
	case packet.ContextLRRTT:
		if l.initiator || l.status != LinkHandshake {
			return
		}
		plain, err := l.token.Decrypt(p.Data.Bytes())
		if err != nil || len(plain) != 8 {
			t.log.Debugf("Dropped bad RTT packet on link %s", l.id)
			return
		}
		measured := now.Sub(l.requestedAt)
		reported := time.Duration(math.Float64frombits(binary.BigEndian.Uint64(plain)) * float64(time.Second))
		l.rtt = max(measured, reported)
		l.status = LinkActive
		l.activatedAt = now
		l._inbound(now)
		t.log.Debugf("Link %s established by remote, rtt %s", l.id, l.rtt)
		d := l.destination
		l.core.callback(func() { d.linkEstablished(l) })
		return
	case packet.ContextKeepalive:
		if l.status < LinkActive {
			return
		}
		l._inbound(now)
		if p.Data.EqualBytes([]byte{keepaliveRequest}) {
			if reply, err := l._packet(packet.ContextKeepalive, []byte{keepaliveResponse}); err == nil {
				t._outbound(reply)
			}
		}
		return
	}
	if l.status < LinkActive {
		return
	}
	plain, err := l.token.Decrypt(p.Data.Bytes())
	if err != nil {
		t.log.Debugf("Dropped undecryptable packet on link %s", l.id)
		return
	}
	l._inbound(now)
	switch p.Context {
	case packet.ContextLinkClose:
		if !bytes.Equal(plain, l.id[:]) {
			return
		}
		if l.initiator {
			l._close(ReasonDestinationClosed)
		} else {
			l._close(ReasonInitiatorClosed)
		}
	case packet.ContextLinkIdentify:
		l._identified(plain)
	case packet.ContextNone:
		l.core.callback(func() {
			if fn := l.packetCallback(); fn != nil {
				fn(plain, l)
			}
		})
	}
}

// _inbound records traffic from the peer. A stale link recovers.
func (l *Link) _inbound(now time.Time) {
	l.lastInbound = now
	l.rxPackets++
	if l.status == LinkStale {
		l.status = LinkActive
	}
}

func (l *Link) _identified(plain []byte) {
	if l.initiator || len(plain) != identity.KeySize/8+identity.SigLength/8 {
		return
	}
	pub := plain[:identity.KeySize/8]
	id, err := identity.FromPublicKey(pub)
	if err != nil {
		return
	}
	if !id.Validate(plain[identity.KeySize/8:], append(l.id[:], pub...)) {
		l.core.transport.log.Debugf("Dropped invalid identification on link %s", l.id)
		return
	}
	l.remote = id
	fn := l.onIdentify
	if fn != nil {
		l.core.callback(func() { fn(l, id) })
	}
}

// _watchdog advances timeouts. It runs on every job tick.
func (l *Link) _watchdog(now time.Time) {
	t := l.core.transport
	l.mutex.Lock()
	defer l.mutex.Unlock()
	switch l.status {
	case LinkPending, LinkHandshake:
		if !now.Before(l.requestedAt.Add(l.timeout)) {
			t.log.Debugf("Link %s timed out during establishment", l.id)
			l._close(ReasonTimeout)
		}
	case LinkActive:
		last := l.lastInbound
		if l.activatedAt.After(last) {
			last = l.activatedAt
		}
		switch {
		case !now.Before(last.Add(StaleTime)):
			l.status = LinkStale
			l.staleAt = now
			l._keepalive(now)
			t.log.Debugf("Link %s is stale", l.id)
		case l.initiator && !now.Before(last.Add(KeepaliveInterval)) && !now.Before(l.lastPing.Add(KeepaliveInterval)):
			l._keepalive(now)
		}
	case LinkStale:
		if !now.Before(l.staleAt.Add(l.rtt*KeepaliveTimeoutFactor + StaleGrace)) {
			t.log.Debugf("Link %s timed out", l.id)
			l._close(ReasonTimeout)
		}
	}
}

func (l *Link) _keepalive(now time.Time) {
	l.lastPing = now
	if p, err := l._packet(packet.ContextKeepalive, []byte{keepaliveRequest}); err == nil {
		l.core.transport._outbound(p)
	}
}

// _close moves the link to closed and schedules the callbacks. The caller
// holds the mutex.
func (l *Link) _close(reason TeardownReason) {
	if l.status == LinkClosed {
		return
	}
	l.status = LinkClosed
	l.reason = reason
	l.prvX = nil
	l.prvSig = nil
	t := l.core.transport
	id := l.id
	t.Act(nil, func() { delete(t.links, id) })
	if fn := l.callbacks.Closed; fn != nil {
		l.core.callback(func() { fn(l) })
	}
}

// Send encrypts data and sends it over the link.
func (l *Link) Send(data []byte) error {
	if len(data) > LinkMDU {
		return ErrLinkTooLarge
	}
	l.mutex.Lock()
	if l.status != LinkActive && l.status != LinkStale {
		l.mutex.Unlock()
		return ErrLinkNotActive
	}
	p, err := l._packet(packet.ContextNone, l.token.Encrypt(data))
	l.mutex.Unlock()
	if err != nil {
		return err
	}
	t := l.core.transport
	t.Act(nil, func() { t._outbound(p) })
	return nil
}

// Identify reveals the initiator's identity to the remote destination.
func (l *Link) Identify(id *identity.Identity) error {
	if !l.initiator {
		return ErrNotInitiator
	}
	pub := id.PublicKey()
	sig, err := id.Sign(append(l.id[:], pub...))
	if err != nil {
		return err
	}
	l.mutex.Lock()
	if l.status != LinkActive && l.status != LinkStale {
		l.mutex.Unlock()
		return ErrLinkNotActive
	}
	p, err := l._packet(packet.ContextLinkIdentify, l.token.Encrypt(append(pub, sig...)))
	l.mutex.Unlock()
	if err != nil {
		return err
	}
	t := l.core.transport
	t.Act(nil, func() { t._outbound(p) })
	return nil
}

// Teardown closes the link and tells the peer.
func (l *Link) Teardown() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.status == LinkClosed {
		return
	}
	if l.token != nil && l.status != LinkPending {
		if p, err := l._packet(packet.ContextLinkClose, l.token.Encrypt(l.id[:])); err == nil {
			t := l.core.transport
			t.Act(nil, func() { t._outbound(p) })
		}
	}
	if l.initiator {
		l._close(ReasonInitiatorClosed)
	} else {
		l._close(ReasonDestinationClosed)
	}
}

func (l *Link) ID() address.Hash { return l.id }

// Destination is the remote destination for initiators and the local one
// for responders.
func (l *Link) Destination() *Destination { return l.destination }

func (l *Link) Initiator() bool { return l.initiator }

func (l *Link) MDU() int { return LinkMDU }

func (l *Link) Status() LinkStatus {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.status
}

func (l *Link) Reason() TeardownReason {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.reason
}

func (l *Link) RTT() time.Duration {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.rtt
}

func (l *Link) ActivatedAt() time.Time {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.activatedAt
}

func (l *Link) LastInbound() time.Time {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.lastInbound
}

// RemoteIdentity is the identity the initiator revealed, or nil.
func (l *Link) RemoteIdentity() *identity.Identity {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.remote
}

// SetPacketCallback sets the handler for data received on the link.
func (l *Link) SetPacketCallback(fn func(data []byte, l *Link)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.callbacks.Packet = fn
}

// SetClosedCallback sets the handler run once the link closes.
func (l *Link) SetClosedCallback(fn func(*Link)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.callbacks.Closed = fn
}

// SetRemoteIdentifiedCallback sets the handler run when the initiator
// identifies itself.
func (l *Link) SetRemoteIdentifiedCallback(fn func(*Link, *identity.Identity)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.onIdentify = fn
}

func (l *Link) packetCallback() func([]byte, *Link) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.callbacks.Packet
}

func (l *Link) String() string {
	return fmt.Sprintf("<link %s %s>", l.id, l.Status())
}
