package framing

const (
	HDLCFlag    = 0x7E
	HDLCEsc     = 0x7D
	HDLCEscMask = 0x20
)

// HDLC is the simplified HDLC framing used on TCP and other stream links:
// a frame is a flag byte, the escaped payload, and a closing flag byte.
type HDLC struct{}

func (HDLC) Name() string { return "hdlc" }

func (HDLC) Frame(payload []byte) []byte { return HDLCFrame(payload) }

func (HDLC) NewDecoder() Decoder { return NewHDLCDecoder(DefaultMaxFrameSize) }

// HDLCEscape escapes flag and escape bytes inside a payload.
func HDLCEscape(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		if b == HDLCFlag || b == HDLCEsc {
			out = append(out, HDLCEsc, b^HDLCEscMask)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// HDLCUnescape reverses HDLCEscape. A dangling escape byte at the end is
// dropped.
func HDLCUnescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	escape := false
	for _, b := range data {
		switch {
		case escape:
			out = append(out, b^HDLCEscMask)
			escape = false
		case b == HDLCEsc:
			escape = true
		default:
			out = append(out, b)
		}
	}
	return out
}

// HDLCFrame wraps a payload in flag bytes.
func HDLCFrame(payload []byte) []byte {
	escaped := HDLCEscape(payload)
	out := make([]byte, 0, len(escaped)+2)
	out = append(out, HDLCFlag)
	out = append(out, escaped...)
	return append(out, HDLCFlag)
}

// HDLCDecoder is the receive state machine for one connection.
type HDLCDecoder struct {
	max      int
	buf      []byte
	inFrame  bool
	escape   bool
	overflow bool
}

// NewHDLCDecoder returns a decoder that discards frames longer than max.
func NewHDLCDecoder(max int) *HDLCDecoder {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &HDLCDecoder{max: max}
}

// Feed consumes bytes from the stream. A flag byte seen inside a frame ends
// it; the same flag also opens the next frame, so both back-to-back and
// shared flags decode correctly.
func (d *HDLCDecoder) Feed(data []byte, emit func([]byte)) {
	for _, b := range data {
		switch {
		case b == HDLCFlag:
			if d.inFrame && len(d.buf) > 0 && !d.overflow {
				emit(append([]byte(nil), d.buf...))
			}
			d.inFrame = true
			d.buf = d.buf[:0]
			d.escape = false
			d.overflow = false
		case !d.inFrame:
		case d.escape:
			d.push(b ^ HDLCEscMask)
			d.escape = false
		case b == HDLCEsc:
			d.escape = true
		default:
			d.push(b)
		}
	}
}

func (d *HDLCDecoder) push(b byte) {
	if len(d.buf) >= d.max {
		d.overflow = true
		return
	}
	d.buf = append(d.buf, b)
}

// Reset drops any partially received frame.
func (d *HDLCDecoder) Reset() {
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escape = false
	d.overflow = false
}
