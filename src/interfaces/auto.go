package interfaces

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/multicast"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

const (
	recentFrameCount = 48
	recentFrameTTL   = 750 * time.Millisecond
)

// AutoInterface finds neighbours on the local segment by multicast
// discovery and sends them every frame as a unicast datagram.
type AutoInterface struct {
	base
	discovery *multicast.Multicast
	dataPort  int
	conn      net.PacketConn
	recent    recentFrames
	stopped   chan struct{}
	once      sync.Once
}

func NewAuto(cfg AutoConfig, logger core.Logger) (*AutoInterface, error) {
	a := &AutoInterface{
		dataPort: cfg.DataPort,
		stopped:  make(chan struct{}),
	}
	if a.dataPort == 0 {
		a.dataPort = multicast.DefaultDataPort
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = multicast.DefaultGroupID
	}
	if err := a.init(cfg.Config, "auto "+groupID, logger); err != nil {
		return nil, err
	}
	opts := []multicast.SetupOption{multicast.GroupID(groupID)}
	if cfg.DiscoveryPort != 0 {
		opts = append(opts, multicast.DiscoveryPort(cfg.DiscoveryPort))
	}
	for _, expr := range cfg.Devices {
		e, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", expr, err)
		}
		opts = append(opts, multicast.MulticastInterface{Regex: e})
	}
	for _, expr := range cfg.IgnoredDevices {
		e, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ignored device %q: %w", expr, err)
		}
		opts = append(opts, multicast.MulticastInterface{Regex: e, Ignore: true})
	}
	a.discovery = multicast.New(a.log, opts...)
	a.discovery.SetPeerHandler(func(p multicast.Peer, up bool) {
		if up {
			a.log.Infof("Interface %s found peer %s on %s", a.name, p.IP, p.Interface)
		} else {
			a.log.Infof("Interface %s lost peer %s on %s", a.name, p.IP, p.Interface)
		}
	})
	return a, nil
}

// Discovery is the multicast discovery this interface sends through.
func (a *AutoInterface) Discovery() *multicast.Multicast {
	return a.discovery
}

func (a *AutoInterface) Start() error {
	lc := &net.ListenConfig{Control: udpControl(a.log)}
	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", a.dataPort))
	if err != nil {
		return err
	}
	if err := a.discovery.Start(); err != nil {
		_ = conn.Close()
		return err
	}
	a.conn = conn
	a.setOnline(true)
	a.log.Infof("Interface %s listening on %s", a.name, conn.LocalAddr())
	go a.read()
	return nil
}

func (a *AutoInterface) read() {
	buf := make([]byte, 2*packet.MTU)
	for {
		n, _, err := a.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-a.stopped:
			default:
				a.log.Errorf("Interface %s failed: %v", a.name, err)
			}
			a.setOnline(false)
			return
		}
		if n == 0 {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		// A peer reachable over several system interfaces delivers the
		// same frame once per interface.
		if a.recent.seen(frame, time.Now()) {
			continue
		}
		a.deliver(frame)
	}
}

// Send writes the frame to every current peer. Without peers the frame is
// dropped.
func (a *AutoInterface) Send(frame []byte) error {
	if !a.online() {
		return ErrNotConnected
	}
	peers := a.discovery.Peers()
	for _, p := range peers {
		if _, err := a.conn.WriteTo(frame, p.Addr(a.dataPort)); err != nil {
			a.log.Debugf("Interface %s failed to send to %s: %v", a.name, p.IP, err)
		}
	}
	if len(peers) > 0 {
		a.sent(len(frame))
	}
	return nil
}

func (a *AutoInterface) Stop() error {
	var err error
	a.once.Do(func() {
		close(a.stopped)
		a.setOnline(false)
		err = a.discovery.Stop()
		if a.conn != nil {
			if cerr := a.conn.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

type recentFrame struct {
	hash [32]byte
	at   time.Time
}

// recentFrames remembers the hashes of the last few frames received.
type recentFrames struct {
	mutex   sync.Mutex
	entries [recentFrameCount]recentFrame
	next    int
}

// seen records the frame and reports whether it arrived within the last
// recentFrameTTL.
func (r *recentFrames) seen(frame []byte, now time.Time) bool {
	var h [32]byte
	copy(h[:], crypto.FullHash(frame))
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, e := range r.entries {
		if e.hash == h && now.Sub(e.at) < recentFrameTTL {
			return true
		}
	}
	r.entries[r.next] = recentFrame{hash: h, at: now}
	r.next = (r.next + 1) % recentFrameCount
	return false
}
