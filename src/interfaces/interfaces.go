// Package interfaces provides the carriers a node sends its frames over:
// byte streams, TCP, UDP and WebSocket connections, and datagrams to
// neighbours found by multicast discovery.
package interfaces

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gologme/log"
	"github.com/mitchellh/mapstructure"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/framing"
)

type interfaceError string

func (e interfaceError) Error() string { return string(e) }

const ErrNotConnected = interfaceError("interface is not connected")
const ErrDisabled = interfaceError("interface is disabled")
const ErrUnknownType = interfaceError("unknown interface type")
const ErrMissingAddress = interfaceError("interface needs an address")

// Config holds the keys every interface section shares.
type Config struct {
	Type      string
	Name      string
	Enabled   *bool
	Mode      string
	Direction string
	Framing   string
}

// IsEnabled is true unless the section explicitly disables the interface.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type TCPServerConfig struct {
	Config     `mapstructure:",squash"`
	ListenIP   string
	ListenPort int
}

type TCPClientConfig struct {
	Config     `mapstructure:",squash"`
	TargetHost string
	TargetPort int
	// Proxy is an optional socks5://[user[:password]@]host:port URL.
	Proxy string
}

type UDPConfig struct {
	Config      `mapstructure:",squash"`
	ListenIP    string
	ListenPort  int
	ForwardIP   string
	ForwardPort int
}

// AutoConfig selects the system interfaces used for multicast discovery.
// Devices and IgnoredDevices are regular expressions over interface names.
type AutoConfig struct {
	Config         `mapstructure:",squash"`
	GroupID        string
	Devices        []string
	IgnoredDevices []string
	DiscoveryPort  int
	DataPort       int
}

type WebSocketConfig struct {
	Config `mapstructure:",squash"`
	// Listen makes a server on host:port. Otherwise URL is dialled.
	Listen string
	URL    string
}

func parseDirection(s string) (core.Direction, error) {
	switch strings.ToLower(s) {
	case "", "both", "inout":
		return core.DirectionBoth, nil
	case "in":
		return core.DirectionIn, nil
	case "out":
		return core.DirectionOut, nil
	}
	return 0, fmt.Errorf("unknown interface direction %q", s)
}

// base carries what every interface has in common: identity, handler and
// counters.
type base struct {
	name      string
	mode      core.InterfaceMode
	direction core.Direction
	log       core.Logger
	mutex     sync.Mutex
	handler   func([]byte)
	stats     core.InterfaceStats
}

// init fills in the settings shared by every interface kind.
func (b *base) init(cfg Config, fallbackName string, logger core.Logger) error {
	mode, err := core.ParseInterfaceMode(cfg.Mode)
	if err != nil {
		return err
	}
	direction, err := parseDirection(cfg.Direction)
	if err != nil {
		return err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	b.name = cfg.Name
	if b.name == "" {
		b.name = fallbackName
	}
	b.mode = mode
	b.direction = direction
	b.log = logger
	return nil
}

func (b *base) Name() string { return b.name }

func (b *base) Mode() core.InterfaceMode { return b.mode }

func (b *base) Direction() core.Direction { return b.direction }

func (b *base) Stats() core.InterfaceStats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

func (b *base) SetIncomingHandler(fn func([]byte)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handler = fn
}

// deliver passes a received frame to the handler, if there is one.
func (b *base) deliver(frame []byte) {
	b.mutex.Lock()
	b.stats.RXPackets++
	b.stats.RXBytes += uint64(len(frame))
	handler := b.handler
	b.mutex.Unlock()
	if handler != nil {
		handler(frame)
	}
}

func (b *base) sent(n int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.stats.TXPackets++
	b.stats.TXBytes += uint64(n)
}

func (b *base) setOnline(online bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.stats.Online = online
}

func (b *base) online() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats.Online
}

// streamConn is one framed byte stream with its own decoder state and
// send queue.
type streamConn struct {
	rwc    io.ReadWriteCloser
	framer framing.Framer
	queue  sendQueue
}

func newStreamConn(rwc io.ReadWriteCloser, framer framing.Framer) *streamConn {
	return &streamConn{rwc: rwc, framer: framer}
}

// serve reads frames until the stream fails.
func (c *streamConn) serve(emit func([]byte)) error {
	return framing.Pump(c.rwc, c.framer.NewDecoder(), emit)
}

// write queues frame. A failed write closes the stream, which ends serve.
func (c *streamConn) write(frame []byte) error {
	return c.queue.push(c.framer.Frame(frame), func(framed []byte) error {
		if _, err := c.rwc.Write(framed); err != nil {
			_ = c.rwc.Close()
			return err
		}
		return nil
	})
}

func (c *streamConn) close() error {
	return c.rwc.Close()
}

func normaliseType(t string) string {
	t = strings.ToLower(t)
	return strings.TrimSuffix(t, "interface")
}

func decode(section map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(section)
}

// FromConfig builds an interface from one free-form configuration
// section. Disabled sections return ErrDisabled.
func FromConfig(section map[string]interface{}, logger core.Logger) (core.Interface, error) {
	var common Config
	if err := decode(section, &common); err != nil {
		return nil, err
	}
	if !common.IsEnabled() {
		return nil, ErrDisabled
	}
	switch normaliseType(common.Type) {
	case "tcpserver":
		var cfg TCPServerConfig
		if err := decode(section, &cfg); err != nil {
			return nil, err
		}
		s, err := NewTCPServer(cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "tcpclient":
		var cfg TCPClientConfig
		if err := decode(section, &cfg); err != nil {
			return nil, err
		}
		c, err := NewTCPClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "udp":
		var cfg UDPConfig
		if err := decode(section, &cfg); err != nil {
			return nil, err
		}
		u, err := NewUDP(cfg, logger)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "websocket":
		var cfg WebSocketConfig
		if err := decode(section, &cfg); err != nil {
			return nil, err
		}
		w, err := NewWebSocket(cfg, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "auto":
		var cfg AutoConfig
		if err := decode(section, &cfg); err != nil {
			return nil, err
		}
		a, err := NewAuto(cfg, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, common.Type)
}
