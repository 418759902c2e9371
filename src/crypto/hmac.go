package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

// HMAC is a keyed digest that can be fed incrementally. Digest does not
// consume the accumulated state, so it may be called repeatedly; Reset
// starts over with the same key.
type HMAC struct {
	mac hash.Hash
}

// NewHMAC returns an HMAC keyed with key over the given hash constructor.
// A nil constructor selects SHA-256.
func NewHMAC(key []byte, digest func() hash.Hash) *HMAC {
	if digest == nil {
		digest = sha256.New
	}
	return &HMAC{mac: hmac.New(digest, key)}
}

// Update feeds more data into the digest.
func (h *HMAC) Update(data []byte) *HMAC {
	_, _ = h.mac.Write(data)
	return h
}

// Digest returns the MAC of everything fed so far.
func (h *HMAC) Digest() []byte {
	return h.mac.Sum(nil)
}

// Reset discards the accumulated state.
func (h *HMAC) Reset() {
	h.mac.Reset()
}

// Size is the digest length in bytes.
func (h *HMAC) Size() int {
	return h.mac.Size()
}

// HMACSHA256 is a one-shot HMAC-SHA256.
func HMACSHA256(key, msg []byte) []byte {
	return NewHMAC(key, sha256.New).Update(msg).Digest()
}

// HMACEqual compares two MACs in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
