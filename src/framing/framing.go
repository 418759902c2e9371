// Package framing delimits packets on byte-stream carriers such as TCP
// sockets and serial ports. Each connection gets its own Decoder, since the
// decoder holds the state of a partially received frame.
package framing

import (
	"io"
	"strings"
)

// DefaultMaxFrameSize bounds the payload a decoder will accumulate. Larger
// frames are discarded whole.
const DefaultMaxFrameSize = 262144

const readBufferSize = 4096

type framingError string

func (e framingError) Error() string { return string(e) }

const ErrUnknownFraming = framingError("unknown framing")

// Framer encodes payloads into frames and creates decoders for the reverse
// direction.
type Framer interface {
	Name() string
	Frame(payload []byte) []byte
	NewDecoder() Decoder
}

// Decoder is a per-connection frame parser. Feed may be called with any
// split of the byte stream; emit is called once for every complete frame, with
// a slice the callee may keep.
type Decoder interface {
	Feed(data []byte, emit func(frame []byte))
	Reset()
}

// ByName returns the framer for a configuration name. An empty name selects
// HDLC.
func ByName(name string) (Framer, error) {
	switch strings.ToLower(name) {
	case "", "hdlc":
		return HDLC{}, nil
	case "kiss":
		return KISS{}, nil
	}
	return nil, ErrUnknownFraming
}

// Pump reads r until it fails, feeding everything into d. It returns the read
// error, which is io.EOF on a clean close.
func Pump(r io.Reader, d Decoder, emit func([]byte)) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n], emit)
		}
		if err != nil {
			return err
		}
	}
}
