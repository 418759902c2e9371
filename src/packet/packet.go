// Package packet implements the wire format of a single network packet.
//
// A packed packet is laid out as
//
//	flags(1) hops(1) [transport_id(16)] destination(16) context(1) data
//
// where flags is ifac(1)|header_type(1)|context_flag(1)|transport_type(1)|
// destination_type(2)|packet_type(2). The transport id is only present for
// Header2 packets. Payload encryption is the caller's business: Data is
// carried exactly as given.
package packet

import (
	"fmt"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/buffer"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
)

const (
	// MTU is the largest packed packet any interface has to carry.
	MTU = 500
	// HeaderMinSize is the size of a Header1 packet with no data.
	HeaderMinSize = 2 + 1 + address.Length
	// HeaderMaxSize is the size of a Header2 packet with no data.
	HeaderMaxSize = 2 + 1 + 2*address.Length
	// IFACMinSize is the smallest interface access code an interface may add.
	IFACMinSize = 1
	// MDU is the largest payload that fits in any packet.
	MDU = MTU - HeaderMaxSize - IFACMinSize
	// EncryptedMDU is the largest plaintext that still fits in a packet once
	// encrypted to an identity.
	EncryptedMDU = (MDU-crypto.TokenOverhead-crypto.X25519KeySize)/16*16 - 1

	// ExplicitProofLength is the data length of a proof carrying the packet
	// hash and the signature.
	ExplicitProofLength = crypto.HashLength + crypto.Ed25519SignatureSize
	// ImplicitProofLength is the data length of a proof carrying only the
	// signature.
	ImplicitProofLength = crypto.Ed25519SignatureSize
)

const (
	flagIFAC        = 0x80
	flagHeader2     = 0x40
	flagContext     = 0x20
	flagTransport   = 0x10
	maskDestination = 0x0C
	maskType        = 0x03
)

type packetError string

func (e packetError) Error() string { return string(e) }

const ErrTruncated = packetError("packet truncated")
const ErrTooLarge = packetError("packet exceeds MTU")
const ErrMissingTransportID = packetError("header type 2 requires a transport id")
const ErrInvalidHeader = packetError("invalid header")

// Packet is one wire message, either built locally for sending or decoded
// from bytes received on an interface.
type Packet struct {
	Type            Type
	HeaderType      HeaderType
	TransportType   TransportType
	DestinationType DestinationType
	Context         Context
	ContextFlag     bool
	IFAC            bool
	Hops            uint8
	TransportID     *address.Hash
	DestinationHash address.Hash
	Data            buffer.Bytes
	Raw             buffer.Bytes

	// ReceivingInterface is set on the receive path to the interface the
	// packet arrived on. It does not own the interface.
	ReceivingInterface any
	// AttachedInterface restricts an outbound packet to one interface.
	AttachedInterface any

	// CreateReceipt asks the transport to track delivery of this packet.
	CreateReceipt bool
	Sent          bool
	SentAt        time.Time
}

// New returns a Header1 broadcast packet ready to be packed.
func New(dest address.Hash, destType DestinationType, typ Type, context Context, data []byte) *Packet {
	return &Packet{
		Type:            typ,
		HeaderType:      Header1,
		TransportType:   Broadcast,
		DestinationType: destType,
		Context:         context,
		DestinationHash: dest,
		Data:            buffer.New(data),
	}
}

func (p *Packet) flags() byte {
	var f byte
	if p.IFAC {
		f |= flagIFAC
	}
	if p.HeaderType == Header2 {
		f |= flagHeader2
	}
	if p.ContextFlag {
		f |= flagContext
	}
	if p.TransportType == Transport {
		f |= flagTransport
	}
	f |= (byte(p.DestinationType) << 2) & maskDestination
	f |= byte(p.Type) & maskType
	return f
}

// Pack encodes the packet into Raw.
func (p *Packet) Pack() error {
	if p.HeaderType > Header2 || p.TransportType > Transport ||
		p.DestinationType > Link || p.Type > TypeProof {
		return ErrInvalidHeader
	}
	size := HeaderMinSize + p.Data.Len()
	if p.HeaderType == Header2 {
		if p.TransportID == nil {
			return ErrMissingTransportID
		}
		size += address.Length
	}
	if size > MTU {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	var raw buffer.Bytes
	raw.Grow(size)
	raw.AppendByte(p.flags())
	raw.AppendByte(p.Hops)
	if p.HeaderType == Header2 {
		raw.AppendBytes(p.TransportID[:])
	}
	raw.AppendBytes(p.DestinationHash[:])
	raw.AppendByte(byte(p.Context))
	raw.Append(p.Data)
	p.Raw = raw
	return nil
}

// Unpack decodes a received frame. The returned packet keeps a private copy
// of raw.
func Unpack(raw []byte) (*Packet, error) {
	if len(raw) < HeaderMinSize {
		return nil, ErrTruncated
	}
	flags := raw[0]
	p := &Packet{
		IFAC:            flags&flagIFAC != 0,
		ContextFlag:     flags&flagContext != 0,
		DestinationType: DestinationType((flags & maskDestination) >> 2),
		Type:            Type(flags & maskType),
		Hops:            raw[1],
	}
	if flags&flagTransport != 0 {
		p.TransportType = Transport
	}
	p.Raw = buffer.New(raw)
	offset := 2
	if flags&flagHeader2 != 0 {
		if len(raw) < HeaderMaxSize {
			return nil, ErrTruncated
		}
		p.HeaderType = Header2
		var tid address.Hash
		copy(tid[:], raw[offset:offset+address.Length])
		p.TransportID = &tid
		offset += address.Length
	}
	copy(p.DestinationHash[:], raw[offset:offset+address.Length])
	offset += address.Length
	p.Context = Context(raw[offset])
	offset++
	p.Data = p.Raw.Mid(offset)
	return p, nil
}

// HashablePart is the portion of the packet covered by its hash: the low
// nibble of the flags byte (destination and packet type), then everything
// from the destination hash onward. Hops, transport id and the routing
// flags are excluded so that the hash survives forwarding.
func (p *Packet) HashablePart() []byte {
	out := make([]byte, 0, 2+address.Length+p.Data.Len())
	out = append(out, p.flags()&(maskDestination|maskType))
	out = append(out, p.DestinationHash[:]...)
	out = append(out, byte(p.Context))
	return append(out, p.Data.Bytes()...)
}

// Hash returns the full hash of the packet.
func (p *Packet) Hash() []byte {
	return crypto.FullHash(p.HashablePart())
}

// TruncatedHash returns the truncated hash of the packet, which is also the
// id of a link created by a link request.
func (p *Packet) TruncatedHash() address.Hash {
	var h address.Hash
	copy(h[:], crypto.TruncatedHash(p.HashablePart()))
	return h
}

// ProofDestination is where proofs for this packet are addressed.
func (p *Packet) ProofDestination() address.Hash {
	return p.TruncatedHash()
}

func (p *Packet) String() string {
	return fmt.Sprintf("<%s %s to %s hops=%d ctx=%s len=%d>",
		p.Type, p.DestinationType, p.DestinationHash, p.Hops, p.Context, p.Data.Len())
}
