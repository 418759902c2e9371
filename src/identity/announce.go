package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

const ErrNotAnnounce = identityError("packet is not an announce")
const ErrAnnounceTruncated = identityError("announce is truncated")
const ErrBadSignature = identityError("announce signature is invalid")
const ErrHashMismatch = identityError("announced destination hash does not match")

// Offsets of the announce fields within the packet data.
const (
	announceKeyEnd    = KeySize / 8
	announceNameEnd   = announceKeyEnd + NameHashLength/8
	announceRandomEnd = announceNameEnd + RandomHashLength/8
	announceSigEnd    = announceRandomEnd + SigLength/8

	// AnnounceMinLength is the length of an announce with no app data.
	AnnounceMinLength = announceSigEnd
)

// RandomHash is the per-announce random blob: five random bytes followed by
// the emission time in seconds, big-endian, in five bytes.
type RandomHash [RandomHashLength / 8]byte

// NewRandomHash returns a random blob stamped with now.
func NewRandomHash(now time.Time) RandomHash {
	var r RandomHash
	copy(r[:5], crypto.RandomBytes(5))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.Unix()))
	copy(r[5:], ts[3:])
	return r
}

// AnnounceEmitted returns the emission time recorded in a random blob.
func AnnounceEmitted(r RandomHash) time.Time {
	var ts [8]byte
	copy(ts[3:], r[5:])
	return time.Unix(int64(binary.BigEndian.Uint64(ts[:])), 0)
}

// Announce is a parsed and verified announce.
type Announce struct {
	DestinationHash address.Hash
	Identity        *Identity
	NameHash        address.NameHash
	RandomHash      RandomHash
	Signature       []byte
	AppData         []byte
}

// AnnounceData builds the data of an announce for a destination owned by id.
func AnnounceData(id *Identity, dest address.Hash, name address.NameHash, random RandomHash, appData []byte) ([]byte, error) {
	pub := id.PublicKey()
	if pub == nil {
		return nil, ErrNoPublicKey
	}
	signed := signedAnnounceData(dest, pub, name[:], random[:], appData)
	sig, err := id.Sign(signed)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, AnnounceMinLength+len(appData))
	out = append(out, pub...)
	out = append(out, name[:]...)
	out = append(out, random[:]...)
	out = append(out, sig...)
	return append(out, appData...), nil
}

func signedAnnounceData(dest address.Hash, pub, name, random, appData []byte) []byte {
	out := make([]byte, 0, address.Length+len(pub)+len(name)+len(random)+len(appData))
	out = append(out, dest[:]...)
	out = append(out, pub...)
	out = append(out, name...)
	out = append(out, random...)
	return append(out, appData...)
}

// ParseAnnounce verifies an announce without touching any cache: the
// signature must be valid for the announced key, and the destination hash
// must follow from the name hash and the announced identity.
func ParseAnnounce(p *packet.Packet) (*Announce, error) {
	if p.Type != packet.TypeAnnounce {
		return nil, ErrNotAnnounce
	}
	data := p.Data.Bytes()
	if len(data) < AnnounceMinLength {
		return nil, ErrAnnounceTruncated
	}
	pub := data[:announceKeyEnd]
	a := &Announce{
		DestinationHash: p.DestinationHash,
		Signature:       append([]byte(nil), data[announceRandomEnd:announceSigEnd]...),
		AppData:         append([]byte(nil), data[announceSigEnd:]...),
	}
	copy(a.NameHash[:], data[announceKeyEnd:announceNameEnd])
	copy(a.RandomHash[:], data[announceNameEnd:announceRandomEnd])

	id, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	signed := signedAnnounceData(p.DestinationHash, pub, a.NameHash[:], a.RandomHash[:], a.AppData)
	if !id.Validate(a.Signature, signed) {
		return nil, ErrBadSignature
	}
	idHash := id.Hash()
	if address.DestinationHash(a.NameHash, &idHash) != p.DestinationHash {
		return nil, ErrHashMismatch
	}
	a.Identity = id
	return a, nil
}

// CheckAnnounce verifies an announce and, if it is valid and does not
// conflict with the key already known for the destination, records it in
// known. On ErrKeyCollision the parsed announce is returned alongside the
// error so the caller can report the conflicting identity. It never panics.
func CheckAnnounce(p *packet.Packet, known *Known) (a *Announce, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("announce rejected: %v", r)
		}
	}()
	a, err = ParseAnnounce(p)
	if err != nil {
		return nil, err
	}
	if known != nil {
		err = known.rememberChecked(a.DestinationHash, p.Hash(), a.Identity.PublicKey(), a.AppData)
		if errors.Is(err, ErrKeyCollision) {
			return a, err
		}
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ValidateAnnounce is CheckAnnounce reduced to a boolean. Every rejection is
// logged; key collisions at warning level, everything else at debug level.
func ValidateAnnounce(p *packet.Packet, known *Known, log Logger) bool {
	_, err := CheckAnnounce(p, known)
	if err == nil {
		return true
	}
	if log != nil {
		if errors.Is(err, ErrKeyCollision) {
			log.Warnf("Rejected announce for %s: %v", p.DestinationHash.Pretty(), err)
		} else {
			log.Debugf("Rejected announce for %s: %v", p.DestinationHash.Pretty(), err)
		}
	}
	return false
}
