package interfaces

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/framing"
)

// StreamInterface carries frames over any byte stream, such as a serial
// port or a pipe.
type StreamInterface struct {
	base
	conn    *streamConn
	stopped chan struct{}
	once    sync.Once
}

// NewStream wraps rwc. The framing key of cfg selects HDLC or KISS.
func NewStream(cfg Config, rwc io.ReadWriteCloser, logger core.Logger) (*StreamInterface, error) {
	framer, err := framing.ByName(cfg.Framing)
	if err != nil {
		return nil, err
	}
	s := newStream(rwc, framer)
	if err := s.init(cfg, "stream", logger); err != nil {
		return nil, err
	}
	return s, nil
}

func newStream(rwc io.ReadWriteCloser, framer framing.Framer) *StreamInterface {
	return &StreamInterface{
		conn:    newStreamConn(rwc, framer),
		stopped: make(chan struct{}),
	}
}

// NewPipe returns two stream interfaces joined back to back in memory,
// with HDLC framing on the wire between them.
func NewPipe(nameA, nameB string) (*StreamInterface, *StreamInterface) {
	ca, cb := net.Pipe()
	a, b := newStream(ca, framing.HDLC{}), newStream(cb, framing.HDLC{})
	_ = a.init(Config{Name: nameA}, "", nil)
	_ = b.init(Config{Name: nameB}, "", nil)
	return a, b
}

func (s *StreamInterface) Start() error {
	s.setOnline(true)
	go s.read()
	return nil
}

func (s *StreamInterface) read() {
	err := s.conn.serve(s.deliver)
	s.setOnline(false)
	select {
	case <-s.stopped:
	default:
		if err != nil && !errors.Is(err, io.EOF) {
			s.log.Warnf("Interface %s failed: %v", s.name, err)
		} else {
			s.log.Infof("Interface %s closed by the remote side", s.name)
		}
	}
}

func (s *StreamInterface) Send(frame []byte) error {
	if !s.online() {
		return ErrNotConnected
	}
	if err := s.conn.write(frame); err != nil {
		return err
	}
	s.sent(len(frame))
	return nil
}

func (s *StreamInterface) Stop() error {
	var err error
	s.once.Do(func() {
		close(s.stopped)
		s.setOnline(false)
		err = s.conn.close()
	})
	return err
}
