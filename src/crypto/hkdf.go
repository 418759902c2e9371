package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF derives length bytes from ikm using HKDF-SHA256. An empty salt is
// treated as a block of zero bytes and an empty context as no info.
func HKDF(length int, ikm, salt, context []byte) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidDerivationLength
	}
	if len(ikm) == 0 {
		return nil, ErrEmptyKeyMaterial
	}
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, context), out); err != nil {
		return nil, ErrInvalidDerivationLength
	}
	return out, nil
}
