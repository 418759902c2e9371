package framing

const (
	KISSFend  = 0xC0
	KISSFesc  = 0xDB
	KISSTfend = 0xDC
	KISSTfesc = 0xDD

	KISSCmdData    = 0x00
	kissCmdUnknown = 0xFE
)

// KISS is the framing spoken by TNCs on serial and radio links. Only data
// frames on port 0 are produced; the decoder accepts data frames on any port
// and ignores everything else.
type KISS struct{}

func (KISS) Name() string { return "kiss" }

func (KISS) Frame(payload []byte) []byte { return KISSFrame(payload) }

func (KISS) NewDecoder() Decoder { return NewKISSDecoder(DefaultMaxFrameSize) }

// KISSEscape escapes FEND and FESC bytes.
func KISSEscape(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		switch b {
		case KISSFesc:
			out = append(out, KISSFesc, KISSTfesc)
		case KISSFend:
			out = append(out, KISSFesc, KISSTfend)
		default:
			out = append(out, b)
		}
	}
	return out
}

// KISSFrame wraps a payload as a port 0 data frame.
func KISSFrame(payload []byte) []byte {
	escaped := KISSEscape(payload)
	out := make([]byte, 0, len(escaped)+3)
	out = append(out, KISSFend, KISSCmdData)
	out = append(out, escaped...)
	return append(out, KISSFend)
}

// KISSDecoder is the receive state machine for one KISS connection.
type KISSDecoder struct {
	max      int
	buf      []byte
	command  byte
	inFrame  bool
	escape   bool
	overflow bool
}

// NewKISSDecoder returns a decoder that discards frames longer than max.
func NewKISSDecoder(max int) *KISSDecoder {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &KISSDecoder{max: max, command: kissCmdUnknown}
}

// Feed consumes bytes from the stream.
func (d *KISSDecoder) Feed(data []byte, emit func([]byte)) {
	for _, b := range data {
		switch {
		case b == KISSFend:
			if d.inFrame && d.command == KISSCmdData && len(d.buf) > 0 && !d.overflow {
				emit(append([]byte(nil), d.buf...))
			}
			d.inFrame = true
			d.command = kissCmdUnknown
			d.buf = d.buf[:0]
			d.escape = false
			d.overflow = false
		case !d.inFrame:
		case d.command == kissCmdUnknown:
			// The low nibble is the command, the high nibble the TNC port.
			d.command = b & 0x0F
		case d.command != KISSCmdData:
		case b == KISSFesc:
			d.escape = true
		case d.escape:
			switch b {
			case KISSTfend:
				d.push(KISSFend)
			case KISSTfesc:
				d.push(KISSFesc)
			}
			d.escape = false
		default:
			d.push(b)
		}
	}
}

func (d *KISSDecoder) push(b byte) {
	if len(d.buf) >= d.max {
		d.overflow = true
		return
	}
	d.buf = append(d.buf, b)
}

// Reset drops any partially received frame.
func (d *KISSDecoder) Reset() {
	d.buf = d.buf[:0]
	d.command = kissCmdUnknown
	d.inFrame = false
	d.escape = false
	d.overflow = false
}
