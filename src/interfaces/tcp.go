package interfaces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/framing"
)

const (
	dialTimeout = 5 * time.Second
	// maxBackoff caps the reconnect wait at 2^maxBackoff seconds.
	maxBackoff = 6
)

// TCPClientInterface keeps one outgoing TCP connection up, reconnecting with
// exponential backoff when it drops.
type TCPClientInterface struct {
	base
	framer   framing.Framer
	target   string
	proxy    *url.URL
	ctx      context.Context
	cancel   context.CancelFunc
	connLock sync.Mutex
	conn     *streamConn
}

func NewTCPClient(cfg TCPClientConfig, logger core.Logger) (*TCPClientInterface, error) {
	if cfg.TargetHost == "" || cfg.TargetPort == 0 {
		return nil, ErrMissingAddress
	}
	framer, err := framing.ByName(cfg.Framing)
	if err != nil {
		return nil, err
	}
	target := net.JoinHostPort(cfg.TargetHost, strconv.Itoa(cfg.TargetPort))
	c := &TCPClientInterface{
		framer: framer,
		target: target,
	}
	if err := c.init(cfg.Config, "tcp "+target, logger); err != nil {
		return nil, err
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		if u.Scheme != "socks5" && u.Scheme != "socks" {
			return nil, fmt.Errorf("proxy: unsupported scheme %q", u.Scheme)
		}
		c.proxy = u
	}
	return c, nil
}

func (c *TCPClientInterface) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run()
	return nil
}

// run dials, serves the connection until it fails and dials again. Each
// consecutive failure doubles the wait.
func (c *TCPClientInterface) run() {
	var backoff int
	backoffNow := func() bool {
		backoff = min(backoff+1, maxBackoff)
		duration := time.Second * time.Duration(math.Exp2(float64(backoff)))
		select {
		case <-time.After(duration):
			return true
		case <-c.ctx.Done():
			return false
		}
	}
	for {
		conn, err := c.dial(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Debugf("Interface %s failed to connect: %v", c.name, err)
			if backoffNow() {
				continue
			}
			return
		}
		sc := newStreamConn(conn, c.framer)
		c.connLock.Lock()
		c.conn = sc
		c.connLock.Unlock()
		c.setOnline(true)
		c.log.Infof("Interface %s connected to %s", c.name, c.target)

		if err = sc.serve(c.deliver); err != nil && !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
			c.log.Debugf("Interface %s error: %v", c.name, err)
		} else {
			backoff = 0
		}
		_ = sc.close()
		c.connLock.Lock()
		c.conn = nil
		c.connLock.Unlock()
		c.setOnline(false)
		if c.ctx.Err() != nil {
			return
		}
		c.log.Infof("Interface %s disconnected from %s", c.name, c.target)
		if !backoffNow() {
			return
		}
	}
}

func (c *TCPClientInterface) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: -1,
		Control:   tcpControl(c.log),
	}
	if c.proxy == nil {
		return dialer.DialContext(ctx, "tcp", c.target)
	}
	var proxyAuth *proxy.Auth
	if c.proxy.User != nil && c.proxy.User.Username() != "" {
		proxyAuth = &proxy.Auth{
			User: c.proxy.User.Username(),
		}
		proxyAuth.Password, _ = c.proxy.User.Password()
	}
	socks, err := proxy.SOCKS5("tcp", c.proxy.Host, proxyAuth, dialer)
	if err != nil {
		return nil, err
	}
	if cd, ok := socks.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", c.target)
	}
	return socks.Dial("tcp", c.target)
}

func (c *TCPClientInterface) Send(frame []byte) error {
	c.connLock.Lock()
	sc := c.conn
	c.connLock.Unlock()
	if sc == nil {
		return ErrNotConnected
	}
	if err := sc.write(frame); err != nil {
		return err
	}
	c.sent(len(frame))
	return nil
}

func (c *TCPClientInterface) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn != nil {
		return c.conn.close()
	}
	return nil
}

// TCPServerInterface accepts TCP connections. Every client has its own
// decoder, and frames sent on the interface go to all clients.
type TCPServerInterface struct {
	base
	framer   framing.Framer
	listen   string
	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	connLock sync.Mutex
	conns    map[*streamConn]net.Addr
}

func NewTCPServer(cfg TCPServerConfig, logger core.Logger) (*TCPServerInterface, error) {
	framer, err := framing.ByName(cfg.Framing)
	if err != nil {
		return nil, err
	}
	listen := net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.ListenPort))
	s := &TCPServerInterface{
		framer: framer,
		listen: listen,
		conns:  make(map[*streamConn]net.Addr),
	}
	if err := s.init(cfg.Config, "tcp server "+listen, logger); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TCPServerInterface) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	lc := &net.ListenConfig{
		KeepAlive: -1,
		Control:   tcpControl(s.log),
	}
	listener, err := lc.Listen(s.ctx, "tcp", s.listen)
	if err != nil {
		return err
	}
	s.listener = listener
	s.setOnline(true)
	s.log.Infof("Interface %s listening on %s", s.name, listener.Addr())
	go s.accept()
	return nil
}

// Addr is the address the server listens on, once started.
func (s *TCPServerInterface) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Clients is the number of connected clients.
func (s *TCPServerInterface) Clients() int {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	return len(s.conns)
}

func (s *TCPServerInterface) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Errorf("Interface %s stopped accepting: %v", s.name, err)
			}
			s.setOnline(false)
			return
		}
		sc := newStreamConn(conn, s.framer)
		s.connLock.Lock()
		s.conns[sc] = conn.RemoteAddr()
		s.connLock.Unlock()
		s.log.Debugf("Interface %s accepted %s", s.name, conn.RemoteAddr())
		go func() {
			if err := sc.serve(s.deliver); err != nil && !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.log.Debugf("Interface %s client %s error: %v", s.name, conn.RemoteAddr(), err)
			}
			_ = sc.close()
			s.connLock.Lock()
			delete(s.conns, sc)
			s.connLock.Unlock()
		}()
	}
}

func (s *TCPServerInterface) Send(frame []byte) error {
	s.connLock.Lock()
	conns := make([]*streamConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.connLock.Unlock()
	for _, sc := range conns {
		if err := sc.write(frame); err != nil {
			s.log.Debugf("Interface %s write failed: %v", s.name, err)
		}
	}
	if len(conns) > 0 {
		s.sent(len(frame))
	}
	return nil
}

func (s *TCPServerInterface) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.connLock.Lock()
	defer s.connLock.Unlock()
	for sc := range s.conns {
		_ = sc.close()
	}
	s.setOnline(false)
	return err
}
