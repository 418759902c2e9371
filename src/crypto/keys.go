package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the length of X25519 private keys, public keys and shared
// secrets.
const X25519KeySize = curve25519.ScalarSize

// Ed25519 sizes as used on the wire: private keys travel as 32 byte seeds.
const (
	Ed25519SeedSize      = ed25519.SeedSize
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)

// X25519PrivateKey is a key-exchange private key.
type X25519PrivateKey [X25519KeySize]byte

// X25519PublicKey is a key-exchange public key.
type X25519PublicKey [X25519KeySize]byte

// GenerateX25519 creates a new random key-exchange private key.
func GenerateX25519() *X25519PrivateKey {
	var k X25519PrivateKey
	if _, err := rand.Read(k[:]); err != nil {
		panic(err)
	}
	return &k
}

// X25519PrivateKeyFromBytes loads a 32 byte private key.
func X25519PrivateKeyFromBytes(b []byte) (*X25519PrivateKey, error) {
	if len(b) != X25519KeySize {
		return nil, ErrInvalidKeyLength
	}
	var k X25519PrivateKey
	copy(k[:], b)
	return &k, nil
}

// X25519PublicKeyFromBytes loads a 32 byte public key.
func X25519PublicKeyFromBytes(b []byte) (*X25519PublicKey, error) {
	if len(b) != X25519KeySize {
		return nil, ErrInvalidKeyLength
	}
	var k X25519PublicKey
	copy(k[:], b)
	return &k, nil
}

// Public derives the public key.
func (k *X25519PrivateKey) Public() *X25519PublicKey {
	pub, err := curve25519.X25519(k[:], curve25519.Basepoint)
	if err != nil {
		panic(err)
	}
	var p X25519PublicKey
	copy(p[:], pub)
	return &p
}

// Exchange computes the shared secret with a peer. Degenerate peer keys
// that would produce an all-zero secret are rejected.
func (k *X25519PrivateKey) Exchange(peer *X25519PublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(k[:], peer[:])
	if err != nil {
		return nil, ErrInvalidPeerKey
	}
	return shared, nil
}

// Bytes returns a copy of the raw key.
func (k *X25519PrivateKey) Bytes() []byte { return append([]byte(nil), k[:]...) }

// Bytes returns a copy of the raw key.
func (k *X25519PublicKey) Bytes() []byte { return append([]byte(nil), k[:]...) }

// Ed25519PrivateKey is a signing key.
type Ed25519PrivateKey struct {
	key ed25519.PrivateKey
}

// Ed25519PublicKey is a signature verification key.
type Ed25519PublicKey [Ed25519PublicKeySize]byte

// GenerateEd25519 creates a new random signing key.
func GenerateEd25519() *Ed25519PrivateKey {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return &Ed25519PrivateKey{key: priv}
}

// Ed25519PrivateKeyFromSeed loads a signing key from its 32 byte seed.
func Ed25519PrivateKeyFromSeed(seed []byte) (*Ed25519PrivateKey, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, ErrInvalidKeyLength
	}
	return &Ed25519PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Ed25519PublicKeyFromBytes loads a 32 byte verification key.
func Ed25519PublicKeyFromBytes(b []byte) (*Ed25519PublicKey, error) {
	if len(b) != Ed25519PublicKeySize {
		return nil, ErrInvalidKeyLength
	}
	var k Ed25519PublicKey
	copy(k[:], b)
	return &k, nil
}

// Seed returns the 32 byte seed the key was derived from.
func (k *Ed25519PrivateKey) Seed() []byte { return k.key.Seed() }

// Public derives the verification key.
func (k *Ed25519PrivateKey) Public() *Ed25519PublicKey {
	var p Ed25519PublicKey
	copy(p[:], k.key.Public().(ed25519.PublicKey))
	return &p
}

// Sign returns a 64 byte signature over msg.
func (k *Ed25519PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}

// Verify reports whether sig is a valid signature of msg.
func (k *Ed25519PublicKey) Verify(msg, sig []byte) bool {
	if len(sig) != Ed25519SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k[:]), msg, sig)
}

// Bytes returns a copy of the raw key.
func (k *Ed25519PublicKey) Bytes() []byte { return append([]byte(nil), k[:]...) }
