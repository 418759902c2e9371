package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

const (
	tokenIVSize  = aes.BlockSize
	tokenMACSize = 32
)

// TokenOverhead is the number of bytes a token adds on top of the padded
// ciphertext: the IV and the HMAC.
const TokenOverhead = tokenIVSize + tokenMACSize

// Token is the symmetric authenticated cipher: AES-CBC with PKCS7 padding,
// authenticated with HMAC-SHA256 over iv||ciphertext. A 32 byte key selects
// AES-128 and a 64 byte key AES-256; the first half of the key signs and the
// second half encrypts.
type Token struct {
	signingKey []byte
	block      cipher.Block
}

// NewToken creates a token cipher for a 32 or 64 byte key.
func NewToken(key []byte) (*Token, error) {
	if len(key) != 32 && len(key) != 64 {
		return nil, ErrInvalidKeyLength
	}
	half := len(key) / 2
	block, err := aes.NewCipher(key[half:])
	if err != nil {
		return nil, ErrInvalidKeyLength
	}
	t := &Token{
		signingKey: make([]byte, half),
		block:      block,
	}
	copy(t.signingKey, key[:half])
	return t, nil
}

// Encrypt returns iv || ciphertext || hmac.
func (t *Token) Encrypt(plaintext []byte) []byte {
	return t.encryptWithIV(RandomBytes(tokenIVSize), plaintext)
}

func (t *Token) encryptWithIV(iv, plaintext []byte) []byte {
	padded := PKCS7Pad(plaintext, aes.BlockSize)
	out := make([]byte, tokenIVSize+len(padded), tokenIVSize+len(padded)+tokenMACSize)
	copy(out, iv)
	cipher.NewCBCEncrypter(t.block, iv).CryptBlocks(out[tokenIVSize:], padded)
	return append(out, HMACSHA256(t.signingKey, out)...)
}

// Decrypt verifies and opens a token. Input that is too short to be a token
// yields ErrTokenTooShort; every other failure yields ErrDecryptFailed so
// that callers cannot tell a bad MAC from bad padding.
func (t *Token) Decrypt(token []byte) ([]byte, error) {
	if len(token) <= TokenOverhead {
		return nil, ErrTokenTooShort
	}
	signed := token[:len(token)-tokenMACSize]
	if !HMACEqual(token[len(token)-tokenMACSize:], HMACSHA256(t.signingKey, signed)) {
		return nil, ErrDecryptFailed
	}
	iv, ciphertext := signed[:tokenIVSize], signed[tokenIVSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryptFailed
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(t.block, iv).CryptBlocks(plaintext, ciphertext)
	unpadded, err := PKCS7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return unpadded, nil
}
