package crypto

// PKCS7BlockSize is the default padding block size, matching AES.
const PKCS7BlockSize = 16

// PKCS7Pad pads data to a multiple of blockSize. At least one byte of
// padding is always added, so a full block is appended to aligned input.
// A blockSize of zero selects PKCS7BlockSize.
func PKCS7Pad(data []byte, blockSize int) []byte {
	if blockSize <= 0 {
		blockSize = PKCS7BlockSize
	}
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// PKCS7Unpad strips PKCS7 padding. It fails rather than truncating when the
// pad length is zero, larger than blockSize, larger than the input, or when
// the pad bytes are inconsistent.
func PKCS7Unpad(data []byte, blockSize int) ([]byte, error) {
	if blockSize <= 0 {
		blockSize = PKCS7BlockSize
	}
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
