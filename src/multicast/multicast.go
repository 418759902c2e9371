// Package multicast discovers peers on the local network segment. Each
// node beacons a token on a link-local IPv6 multicast group derived from a
// shared group ID and remembers the link-local addresses it hears valid
// tokens from.
package multicast

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/gologme/log"
	"golang.org/x/net/ipv6"

	"github.com/yggdrasil-network/rnsmesh/src/core"
)

const (
	DefaultGroupID       = "reticulum"
	DefaultDiscoveryPort = 29716
	DefaultDataPort      = 42671

	defaultAnnounceInterval = 1600 * time.Millisecond
	defaultPeerTimeout      = 22 * time.Second
	rescanInterval          = 16 * time.Second
)

// Peer is a neighbour heard on one system interface.
type Peer struct {
	IP        net.IP
	Interface string
	LastHeard time.Time
}

// Addr is the peer's address on the given port, scoped to the interface it
// was heard on.
func (p Peer) Addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: p.IP, Port: port, Zone: p.Interface}
}

func (p Peer) key() string { return p.IP.String() + "%" + p.Interface }

type interfaceInfo struct {
	iface     net.Interface
	linkLocal net.IP
}

type Multicast struct {
	phony.Inbox
	log         core.Logger
	sock        *ipv6.PacketConn
	groupAddr   *net.UDPAddr
	_interfaces map[string]*interfaceInfo
	_peers      map[string]*Peer
	_lastScan   time.Time
	onPeer      func(peer Peer, up bool)
	stop        chan struct{}
	once        sync.Once

	// replaced in tests
	listInterfaces func() ([]net.Interface, error)
	addrsOf        func(net.Interface) ([]net.Addr, error)
	now            func() time.Time
	config         struct {
		groupID  []byte
		devices  []*regexp.Regexp
		ignored  []*regexp.Regexp
		port     int
		interval time.Duration
		timeout  time.Duration
	}
}

func New(logger core.Logger, opts ...SetupOption) *Multicast {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Multicast{
		log:            logger,
		_interfaces:    make(map[string]*interfaceInfo),
		_peers:         make(map[string]*Peer),
		stop:           make(chan struct{}),
		listInterfaces: net.Interfaces,
		addrsOf:        func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		now:            time.Now,
	}
	m.config.groupID = []byte(DefaultGroupID)
	m.config.port = DefaultDiscoveryPort
	m.config.interval = defaultAnnounceInterval
	m.config.timeout = defaultPeerTimeout
	for _, opt := range opts {
		m._applyOption(opt)
	}
	m.groupAddr = &net.UDPAddr{IP: GroupAddress(m.config.groupID), Port: m.config.port}
	return m
}

// SetPeerHandler sets a function called from the actor whenever a peer
// appears or times out. It must be set before Start.
func (m *Multicast) SetPeerHandler(fn func(peer Peer, up bool)) {
	m.onPeer = fn
}

// GroupAddr is the multicast group and port beacons are sent to.
func (m *Multicast) GroupAddr() *net.UDPAddr {
	return m.groupAddr
}

func (m *Multicast) Start() error {
	lc := net.ListenConfig{
		Control: m.multicastReuse,
	}
	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", m.config.port))
	if err != nil {
		return err
	}
	m.sock = ipv6.NewPacketConn(conn)
	if err = m.sock.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
		// Windows can't set this flag, so we need to handle it in other ways
		m.log.Debugln("Multicast control messages unavailable:", err)
	}
	phony.Block(m, func() {
		m._updateInterfaces()
		if len(m._interfaces) == 0 {
			m.log.Warnln("No interfaces are suitable for multicast discovery yet")
		}
	})
	m.log.Infof("Multicast discovery on %s", m.groupAddr)
	m.watchInterfaces()
	go m.listen()
	go m.announce()
	return nil
}

func (m *Multicast) Stop() error {
	var err error
	m.once.Do(func() {
		close(m.stop)
		if m.sock != nil {
			err = m.sock.Close()
		}
	})
	return err
}

// Peers returns the current neighbours, ordered by address.
func (m *Multicast) Peers() []Peer {
	var peers []Peer
	phony.Block(m, func() {
		for _, p := range m._peers {
			peers = append(peers, *p)
		}
	})
	sort.Slice(peers, func(i, j int) bool { return peers[i].key() < peers[j].key() })
	return peers
}

// Interfaces returns the names of the system interfaces in use.
func (m *Multicast) Interfaces() []string {
	var names []string
	phony.Block(m, func() {
		for name := range m._interfaces {
			names = append(names, name)
		}
	})
	sort.Strings(names)
	return names
}

// IsOwn reports whether ip is one of the local link-local addresses.
func (m *Multicast) IsOwn(ip net.IP) bool {
	var own bool
	phony.Block(m, func() { own = m._isOwn(ip) })
	return own
}

func (m *Multicast) _isOwn(ip net.IP) bool {
	for _, info := range m._interfaces {
		if info.linkLocal.Equal(ip) {
			return true
		}
	}
	return false
}

func (m *Multicast) allowed(name string) bool {
	for _, e := range m.config.ignored {
		if e.MatchString(name) {
			return false
		}
	}
	if len(m.config.devices) == 0 {
		return true
	}
	for _, e := range m.config.devices {
		if e.MatchString(name) {
			return true
		}
	}
	return false
}

// _updateInterfaces rescans the system interfaces, joining the group on
// new ones and leaving it on those that went away.
func (m *Multicast) _updateInterfaces() {
	m._lastScan = m.now()
	all, err := m.listInterfaces()
	if err != nil {
		m.log.Warnln("Failed to list interfaces:", err)
		return
	}
	current := make(map[string]*interfaceInfo)
	for _, iface := range all {
		if iface.Flags&net.FlagUp == 0 {
			// Ignore interfaces that are down
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			// Ignore non-multicast interfaces
			continue
		}
		if iface.Flags&(net.FlagPointToPoint|net.FlagLoopback) != 0 {
			// Ignore point-to-point and loopback interfaces
			continue
		}
		if !m.allowed(iface.Name) {
			continue
		}
		addrs, err := m.addrsOf(iface)
		if err != nil {
			m.log.Warnf("Failed to get addresses for interface %s: %s", iface.Name, err)
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil || ip.To4() != nil || !ip.IsLinkLocalUnicast() {
				continue
			}
			current[iface.Name] = &interfaceInfo{iface: iface, linkLocal: ip}
			break
		}
	}
	for name, info := range m._interfaces {
		if _, ok := current[name]; ok {
			continue
		}
		if m.sock != nil {
			_ = m.sock.LeaveGroup(&info.iface, m.groupAddr)
		}
		m.log.Debugln("No longer multicasting on", name)
		for key, p := range m._peers {
			if p.Interface == name {
				delete(m._peers, key)
				m._notify(*p, false)
			}
		}
	}
	for name, info := range current {
		if old, ok := m._interfaces[name]; ok && old.linkLocal.Equal(info.linkLocal) {
			continue
		}
		if m.sock != nil {
			if err := m.sock.JoinGroup(&info.iface, m.groupAddr); err != nil {
				m.log.Warnln("Not multicasting on", name, "due to error:", err)
				delete(current, name)
				continue
			}
		}
		m.log.Debugln("Started multicasting on", name, "from", info.linkLocal)
	}
	m._interfaces = current
}

func (m *Multicast) _announce() {
	if m.sock == nil {
		return
	}
	for name, info := range m._interfaces {
		dst := *m.groupAddr
		dst.Zone = name
		if _, err := m.sock.WriteTo(Token(m.config.groupID, info.linkLocal), nil, &dst); err != nil {
			m.log.Debugln("Failed to send multicast beacon on", name+":", err)
		}
	}
}

func (m *Multicast) _expire() {
	now := m.now()
	for key, p := range m._peers {
		if now.Sub(p.LastHeard) > m.config.timeout {
			delete(m._peers, key)
			m.log.Debugln("Multicast peer timed out:", key)
			m._notify(*p, false)
		}
	}
}

// _beacon handles a token received from ip on the named interface.
func (m *Multicast) _beacon(ip net.IP, zone string, token []byte) {
	if m._isOwn(ip) {
		return
	}
	if _, ok := m._interfaces[zone]; !ok {
		return
	}
	if !ValidToken(m.config.groupID, ip, token) {
		m.log.Debugln("Ignoring invalid multicast beacon from", ip)
		return
	}
	p := &Peer{IP: ip, Interface: zone, LastHeard: m.now()}
	if existing, ok := m._peers[p.key()]; ok {
		existing.LastHeard = p.LastHeard
		return
	}
	m._peers[p.key()] = p
	m.log.Debugln("Multicast peer discovered:", p.key())
	m._notify(*p, true)
}

func (m *Multicast) _notify(p Peer, up bool) {
	if m.onPeer != nil {
		m.onPeer(p, up)
	}
}

func (m *Multicast) announce() {
	m.Act(nil, m._announce)
	ticker := time.NewTicker(m.config.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		m.Act(nil, func() {
			if m.now().Sub(m._lastScan) >= rescanInterval {
				m._updateInterfaces()
			}
			m._announce()
			m._expire()
		})
	}
}

func (m *Multicast) listen() {
	bs := make([]byte, 2048)
	for {
		n, rcm, fromAddr, err := m.sock.ReadFrom(bs)
		if err != nil {
			select {
			case <-m.stop:
			default:
				m.log.Errorln("Multicast discovery failed:", err)
			}
			return
		}
		if rcm != nil && rcm.Dst != nil {
			// Windows can't set the flag needed to return a non-nil value here
			if !rcm.Dst.Equal(m.groupAddr.IP) {
				continue
			}
		}
		from, ok := fromAddr.(*net.UDPAddr)
		if !ok || !from.IP.IsLinkLocalUnicast() {
			continue
		}
		zone := from.Zone
		if zone == "" && rcm != nil {
			if iface, err := net.InterfaceByIndex(rcm.IfIndex); err == nil {
				zone = iface.Name
			}
		}
		token := append([]byte(nil), bs[:n]...)
		m.Act(nil, func() { m._beacon(from.IP, zone, token) })
	}
}
