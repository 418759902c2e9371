//go:build linux
// +build linux

package interfaces

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/yggdrasil-network/rnsmesh/src/core"
)

// Keepalive settings for TCP carriers. A dead peer is noticed after about
// TCPUserTimeout.
const (
	tcpKeepIdle     = 5
	tcpKeepInterval = 2
	tcpKeepCount    = 12
	tcpUserTimeout  = 24000 // milliseconds
)

// WARNING: This control function is used both by net.Dialer and net.Listen
func tcpControl(log core.Logger) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockerr error
		control := c.Control(func(fd uintptr) {
			sockerr = errors.Join(
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1),
				unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, tcpKeepIdle),
				unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, tcpKeepInterval),
				unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, tcpKeepCount),
				unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, tcpUserTimeout),
			)
		})
		if sockerr != nil {
			log.Debugln("Failed to set TCP keepalive options:", sockerr)
		}
		if control != nil {
			log.Debugln("Failed to set TCP keepalive options, Control error:", control)
		}
		// Not fatal, the connection only notices dead peers later.
		return nil
	}
}

func udpControl(log core.Logger) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockerr error
		control := c.Control(func(fd uintptr) {
			sockerr = errors.Join(
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1),
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1),
			)
		})
		if sockerr != nil {
			log.Debugln("Failed to set UDP socket options:", sockerr)
		}
		if control != nil {
			log.Debugln("Failed to set UDP socket options, Control error:", control)
		}
		return nil
	}
}
