package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// ProofStrategy decides which received packets a destination proves.
type ProofStrategy uint8

const (
	ProveNone ProofStrategy = iota
	ProveApp
	ProveAll
)

type destinationError string

func (e destinationError) Error() string { return string(e) }

const ErrDestinationRegistered = destinationError("a destination with this hash is already registered")
const ErrInvalidDirection = destinationError("destination direction must be in or out")
const ErrInvalidDestinationType = destinationError("unsupported destination type")
const ErrPlainIdentity = destinationError("plain destinations cannot hold an identity")
const ErrMissingIdentity = destinationError("outbound single destinations need the remote identity")
const ErrNotAnnounceable = destinationError("only inbound single destinations can be announced")
const ErrNotOutbound = destinationError("only outbound destinations can send")
const ErrNoGroupKey = destinationError("group destination has no key")

// Destination is an addressable endpoint. Inbound destinations receive
// packets and are registered with the transport. Outbound destinations
// describe a remote endpoint that packets and links are sent to.
type Destination struct {
	core      *Core
	identity  *identity.Identity
	direction Direction
	typ       packet.DestinationType
	name      string
	nameHash  address.NameHash
	hash      address.Hash
	mutex     sync.RWMutex
	group     *crypto.Token
	groupKey  []byte
	strategy  ProofStrategy
	appData   []byte
	onPacket  func(data []byte, p *packet.Packet)
	onLink    func(*Link)
	onProof   func(*packet.Packet) bool
}

// NewDestination creates a destination named app.aspect1.aspect2... Inbound
// single destinations without an identity get a fresh one.
func (c *Core) NewDestination(id *identity.Identity, dir Direction, typ packet.DestinationType, app string, aspects ...string) (*Destination, error) {
	if dir != DirectionIn && dir != DirectionOut {
		return nil, ErrInvalidDirection
	}
	switch typ {
	case packet.Plain:
		if id != nil {
			return nil, ErrPlainIdentity
		}
	case packet.Single:
		if id == nil {
			if dir == DirectionOut {
				return nil, ErrMissingIdentity
			}
			id = identity.New()
		}
	case packet.Group:
	default:
		return nil, ErrInvalidDestinationType
	}
	name, err := address.ExpandName(nil, app, aspects...)
	if err != nil {
		return nil, err
	}
	nameHash, err := address.NameHashFor(app, aspects...)
	if err != nil {
		return nil, err
	}
	d := &Destination{
		core:      c,
		identity:  id,
		direction: dir,
		typ:       typ,
		name:      name,
		nameHash:  nameHash,
	}
	if id != nil {
		idHash := id.Hash()
		d.hash = address.DestinationHash(nameHash, &idHash)
	} else {
		d.hash = address.DestinationHash(nameHash, nil)
	}
	if dir == DirectionIn {
		if err := c.transport.registerDestination(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Destination) Hash() address.Hash { return d.hash }
func (d *Destination) Name() string { return d.name }
func (d *Destination) NameHash() address.NameHash { return d.nameHash }
func (d *Destination) Type() packet.DestinationType { return d.typ }
func (d *Destination) Direction() Direction { return d.direction }
func (d *Destination) Identity() *identity.Identity { return d.identity }
func (d *Destination) String() string { return fmt.Sprintf("<%s:%s>", d.name, d.hash) }

// Deregister removes an inbound destination from the transport.
func (d *Destination) Deregister() {
	if d.direction == DirectionIn {
		d.core.transport.deregisterDestination(d)
	}
}

// SetDefaultAppData sets the app data used when announcing without any, and
// when answering path requests.
func (d *Destination) SetDefaultAppData(appData []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.appData = append([]byte(nil), appData...)
}

func (d *Destination) SetPacketCallback(fn func(data []byte, p *packet.Packet)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onPacket = fn
}

func (d *Destination) SetLinkEstablishedCallback(fn func(*Link)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onLink = fn
}

func (d *Destination) SetProofStrategy(s ProofStrategy) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.strategy = s
}

// SetProofRequestedCallback decides for ProveApp destinations whether a
// packet is proven. It runs on the transport and must not block or call
// back into blocking node APIs.
func (d *Destination) SetProofRequestedCallback(fn func(*packet.Packet) bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onProof = fn
}

// CreateGroupKey gives a group destination a fresh symmetric key.
func (d *Destination) CreateGroupKey() error {
	return d.LoadGroupKey(crypto.RandomBytes(64))
}

// LoadGroupKey sets the symmetric key of a group destination. Keys of 32
// bytes select AES-128, keys of 64 bytes AES-256.
func (d *Destination) LoadGroupKey(key []byte) error {
	if d.typ != packet.Group {
		return ErrInvalidDestinationType
	}
	token, err := crypto.NewToken(key)
	if err != nil {
		return err
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.group = token
	d.groupKey = append([]byte(nil), key...)
	return nil
}

// GroupKey returns a copy of the group key, or nil.
func (d *Destination) GroupKey() []byte {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return append([]byte(nil), d.groupKey...)
}

// Encrypt prepares plaintext for this destination: single destinations
// encrypt to their identity, group destinations with the group key, plain
// destinations not at all.
func (d *Destination) Encrypt(plaintext []byte) ([]byte, error) {
	switch d.typ {
	case packet.Single:
		return d.identity.Encrypt(plaintext)
	case packet.Group:
		d.mutex.RLock()
		token := d.group
		d.mutex.RUnlock()
		if token == nil {
			return nil, ErrNoGroupKey
		}
		return token.Encrypt(plaintext), nil
	}
	return append([]byte(nil), plaintext...), nil
}

// Decrypt reverses Encrypt.
func (d *Destination) Decrypt(ciphertext []byte) ([]byte, error) {
	switch d.typ {
	case packet.Single:
		return d.identity.Decrypt(ciphertext)
	case packet.Group:
		d.mutex.RLock()
		token := d.group
		d.mutex.RUnlock()
		if token == nil {
			return nil, ErrNoGroupKey
		}
		return token.Decrypt(ciphertext)
	}
	return append([]byte(nil), ciphertext...), nil
}

// Announce sends an announce for the destination on every interface. A nil
// appData uses the default app data. Path responses are sent with the path
// response context and are not rebroadcast by transport nodes.
func (d *Destination) Announce(appData []byte, pathResponse bool) error {
	p, err := d.announcePacket(appData, pathResponse)
	if err != nil {
		return err
	}
	t := d.core.transport
	t.Act(nil, func() { t._outbound(p) })
	return nil
}

func (d *Destination) announcePacket(appData []byte, pathResponse bool) (*packet.Packet, error) {
	if d.direction != DirectionIn || d.typ != packet.Single {
		return nil, ErrNotAnnounceable
	}
	if appData == nil {
		d.mutex.RLock()
		appData = d.appData
		d.mutex.RUnlock()
	}
	random := identity.NewRandomHash(d.core.now())
	data, err := identity.AnnounceData(d.identity, d.hash, d.nameHash, random, appData)
	if err != nil {
		return nil, err
	}
	context := packet.ContextNone
	if pathResponse {
		context = packet.ContextPathResponse
	}
	p := packet.New(d.hash, packet.Single, packet.TypeAnnounce, context, data)
	if err := p.Pack(); err != nil {
		return nil, err
	}
	return p, nil
}

// Send encrypts data for an outbound destination and sends it. Packets to
// single destinations get a receipt; others return a nil receipt.
func (d *Destination) Send(data []byte) (*Receipt, error) {
	if d.direction != DirectionOut {
		return nil, ErrNotOutbound
	}
	ciphertext, err := d.Encrypt(data)
	if err != nil {
		return nil, err
	}
	p := packet.New(d.hash, d.typ, packet.TypeData, packet.ContextNone, ciphertext)
	if err := p.Pack(); err != nil {
		return nil, err
	}
	var receipt *Receipt
	if d.typ == packet.Single {
		receipt = newReceipt(d.core, p, d.identity, 0)
	}
	t := d.core.transport
	t.Act(nil, func() {
		if receipt != nil {
			receipt.SetTimeout(FirstHopTimeout + TimeoutPerHop*time.Duration(t._hopsTo(d.hash)))
			t._addReceipt(receipt)
		}
		t._outbound(p)
	})
	return receipt, nil
}

// _receive handles a data packet addressed to this inbound destination.
func (d *Destination) _receive(p *packet.Packet) {
	t := d.core.transport
	data, err := d.Decrypt(p.Data.Bytes())
	if err != nil {
		t.log.Debugf("Dropped undecryptable packet for %s: %v", d, err)
		return
	}
	d.mutex.RLock()
	strategy, onProof := d.strategy, d.onProof
	d.mutex.RUnlock()
	if d.typ == packet.Single {
		prove := strategy == ProveAll
		if strategy == ProveApp && onProof != nil {
			prove = onProof(p)
		}
		if prove {
			d._prove(p)
		}
	}
	d.core.callback(func() {
		d.mutex.RLock()
		fn := d.onPacket
		d.mutex.RUnlock()
		if fn != nil {
			fn(data, p)
		}
	})
}

func (d *Destination) _prove(p *packet.Packet) {
	t := d.core.transport
	proof, err := d.identity.Prove(p, nil, !d.core.config.explicitProofs)
	if err != nil {
		t.log.Debugf("Could not prove packet for %s: %v", d, err)
		return
	}
	t._outbound(proof)
}

func (d *Destination) linkEstablished(l *Link) {
	d.mutex.RLock()
	fn := d.onLink
	d.mutex.RUnlock()
	if fn != nil {
		fn(l)
	}
}
