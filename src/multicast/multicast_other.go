//go:build !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly && !windows
// +build !linux,!darwin,!netbsd,!freebsd,!openbsd,!dragonfly,!windows

package multicast

import "syscall"

func (m *Multicast) watchInterfaces() {}

func (m *Multicast) multicastReuse(network string, address string, c syscall.RawConn) error {
	return nil
}
