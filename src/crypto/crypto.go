// Package crypto is a wrapper around the hash, cipher and curve primitives
// used by the protocol: SHA-2 hashing, HMAC, HKDF, PKCS7 padding, the
// authenticated token cipher, and the X25519 / Ed25519 key types.
// Everything else in the stack goes through this package rather than
// importing crypto/* and golang.org/x/crypto/* directly.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"hash/crc32"
)

// HashLength is the length in bytes of a full hash.
const HashLength = sha256.Size

// TruncatedHashLength is the length in bytes of a truncated hash, used for
// identity and destination addresses.
const TruncatedHashLength = 16

type cryptoError string

func (e cryptoError) Error() string { return string(e) }

const ErrInvalidKeyLength = cryptoError("invalid key length")
const ErrInvalidPadding = cryptoError("invalid padding")
const ErrTokenTooShort = cryptoError("token too short")
const ErrDecryptFailed = cryptoError("decryption failed")
const ErrInvalidDerivationLength = cryptoError("invalid output key length")
const ErrEmptyKeyMaterial = cryptoError("cannot derive key from empty input material")
const ErrInvalidPeerKey = cryptoError("invalid peer public key")

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// SHA512 returns the SHA-512 digest of data.
func SHA512(data []byte) []byte {
	h := sha512.Sum512(data)
	return h[:]
}

// FullHash is the hash used throughout the protocol.
func FullHash(data []byte) []byte {
	return SHA256(data)
}

// TruncatedHash returns the first TruncatedHashLength bytes of FullHash.
func TruncatedHash(data []byte) []byte {
	return FullHash(data)[:TruncatedHashLength]
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomHash returns the truncated hash of fresh random bytes.
func RandomHash() []byte {
	return TruncatedHash(RandomBytes(TruncatedHashLength))
}

// CRC32 continues an IEEE CRC-32 checksum over data. Passing the result of a
// previous call as crc checksums the concatenation of the inputs.
func CRC32(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, data)
}
