//go:build linux
// +build linux

package multicast

import (
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// watchInterfaces rescans as soon as the kernel reports a link or
// link-local address change, instead of waiting for the next periodic scan.
func (m *Multicast) watchInterfaces() {
	linkChanges := make(chan netlink.LinkUpdate, 16)
	addrChanges := make(chan netlink.AddrUpdate, 16)
	done := make(chan struct{})

	if err := netlink.LinkSubscribe(linkChanges, done); err != nil {
		m.log.Warnln("Failed to watch for link changes:", err)
		close(done)
		return
	}
	if err := netlink.AddrSubscribe(addrChanges, done); err != nil {
		m.log.Warnln("Failed to watch for address changes:", err)
		close(done)
		return
	}

	go func() {
		defer close(done)
		for {
			select {
			case change, ok := <-linkChanges:
				if !ok {
					return
				}
				m.log.Debugln("Link changed:", change.Attrs().Name)
			case change, ok := <-addrChanges:
				if !ok {
					return
				}
				if !change.LinkAddress.IP.IsLinkLocalUnicast() {
					continue
				}
				m.log.Debugln("Link-local address changed:", change.LinkAddress.IP)
			case <-m.stop:
				return
			}
			m.Act(nil, m._updateInterfaces)
		}
	}()
}

func (m *Multicast) multicastReuse(network string, address string, c syscall.RawConn) error {
	var control error
	var reuseport error

	control = c.Control(func(fd uintptr) {
		reuseport = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})

	switch {
	case reuseport != nil:
		return reuseport
	default:
		return control
	}
}
