//go:build !linux
// +build !linux

package interfaces

import (
	"syscall"

	"github.com/yggdrasil-network/rnsmesh/src/core"
)

func tcpControl(log core.Logger) func(network, address string, c syscall.RawConn) error {
	return nil
}

func udpControl(log core.Logger) func(network, address string, c syscall.RawConn) error {
	return nil
}
