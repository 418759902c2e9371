// Package address contains the types used to represent identity and
// destination hashes on the network, and the functions that derive a
// destination hash from an application name and an identity.
// A destination hash is the truncated SHA-256 of the destination's name hash
// followed by the owning identity's hash, so any node that knows the name and
// the public key can compute it independently.
package address

import (
	"encoding/hex"
	"strings"

	"github.com/yggdrasil-network/rnsmesh/src/crypto"
)

// Length is the length in bytes of identity and destination hashes.
const Length = crypto.TruncatedHashLength

// NameHashLength is the length in bytes of a destination name hash.
const NameHashLength = 10

// Hash represents a truncated hash, used for identity, destination, link and
// transport addresses. It is comparable and can be used as a map key.
type Hash [Length]byte

// NameHash represents the hash of a dotted application name.
type NameHash [NameHashLength]byte

type addressError string

func (e addressError) Error() string { return string(e) }

const ErrInvalidLength = addressError("invalid hash length")
const ErrInvalidName = addressError("dots are not allowed in app names or aspects")

// HashFromBytes copies a 16 byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Length {
		return h, ErrInvalidLength
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses the hex form of a hash, as printed by String.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Pretty returns the hash in the bracketed form used in log lines.
func (h Hash) Pretty() string {
	return "<" + h.String() + ">"
}

// IsZero is true for the unset hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the lowercase hex form of the name hash.
func (n NameHash) String() string {
	return hex.EncodeToString(n[:])
}

// IsValidAppName reports whether name can be used as an app name or aspect.
func IsValidAppName(name string) bool {
	return name != "" && !strings.Contains(name, ".")
}

// ExpandName builds the dotted name of a destination. If identityHash is not
// nil, its hex form is appended as the last component.
func ExpandName(identityHash *Hash, appName string, aspects ...string) (string, error) {
	if !IsValidAppName(appName) {
		return "", ErrInvalidName
	}
	parts := append([]string{appName}, aspects...)
	for _, aspect := range aspects {
		if !IsValidAppName(aspect) {
			return "", ErrInvalidName
		}
	}
	if identityHash != nil {
		parts = append(parts, identityHash.String())
	}
	return strings.Join(parts, "."), nil
}

// NameHashFor returns the name hash of an application name and its aspects.
// The identity is never part of the name hash.
func NameHashFor(appName string, aspects ...string) (NameHash, error) {
	var n NameHash
	name, err := ExpandName(nil, appName, aspects...)
	if err != nil {
		return n, err
	}
	copy(n[:], crypto.FullHash([]byte(name)))
	return n, nil
}

// DestinationHash derives a destination hash. A nil identityHash gives the
// hash of a PLAIN destination, which is not bound to any identity.
func DestinationHash(nameHash NameHash, identityHash *Hash) Hash {
	material := make([]byte, 0, NameHashLength+Length)
	material = append(material, nameHash[:]...)
	if identityHash != nil {
		material = append(material, identityHash[:]...)
	}
	var h Hash
	copy(h[:], crypto.TruncatedHash(material))
	return h
}
