package interfaces

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// UDPInterface sends every frame as one datagram to the forward address,
// which is usually a broadcast address, and receives on the listen address.
type UDPInterface struct {
	base
	listen  string
	forward string
	conn    net.PacketConn
	target  net.Addr
	stopped chan struct{}
	once    sync.Once
}

func NewUDP(cfg UDPConfig, logger core.Logger) (*UDPInterface, error) {
	if cfg.ForwardIP == "" || cfg.ForwardPort == 0 {
		return nil, ErrMissingAddress
	}
	u := &UDPInterface{
		listen:  net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.ListenPort)),
		forward: net.JoinHostPort(cfg.ForwardIP, strconv.Itoa(cfg.ForwardPort)),
		stopped: make(chan struct{}),
	}
	if err := u.init(cfg.Config, "udp "+u.listen, logger); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UDPInterface) Start() error {
	target, err := net.ResolveUDPAddr("udp", u.forward)
	if err != nil {
		return err
	}
	lc := &net.ListenConfig{Control: udpControl(u.log)}
	conn, err := lc.ListenPacket(context.Background(), "udp", u.listen)
	if err != nil {
		return err
	}
	u.conn, u.target = conn, target
	u.setOnline(true)
	u.log.Infof("Interface %s listening on %s, forwarding to %s", u.name, conn.LocalAddr(), target)
	go u.read()
	return nil
}

// Addr is the local address, once started.
func (u *UDPInterface) Addr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDPInterface) read() {
	buf := make([]byte, 2*packet.MTU)
	for {
		n, _, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.stopped:
			default:
				u.log.Errorf("Interface %s failed: %v", u.name, err)
			}
			u.setOnline(false)
			return
		}
		if n == 0 {
			continue
		}
		u.deliver(append([]byte(nil), buf[:n]...))
	}
}

func (u *UDPInterface) Send(frame []byte) error {
	if !u.online() {
		return ErrNotConnected
	}
	if _, err := u.conn.WriteTo(frame, u.target); err != nil {
		return err
	}
	u.sent(len(frame))
	return nil
}

func (u *UDPInterface) Stop() error {
	var err error
	u.once.Do(func() {
		close(u.stopped)
		u.setOnline(false)
		if u.conn != nil {
			err = u.conn.Close()
		}
	})
	return err
}
