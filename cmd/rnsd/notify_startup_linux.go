//go:build linux

package main

import (
	"net"
	"os"
)

const notifySocketEnv = "NOTIFY_SOCKET"

// notifyStartupCompleted tells systemd that the interfaces and the admin
// socket are up, so that units ordered after rnsd start only then. The
// status line shows up in systemctl status.
//
// It reports false with a nil error when NOTIFY_SOCKET is unset.
func notifyStartupCompleted(status string) (bool, error) {
	name := os.Getenv(notifySocketEnv)
	if name == "" {
		return false, nil
	}
	_ = os.Unsetenv(notifySocketEnv)

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return false, err
	}
	defer conn.Close()

	msg := "READY=1"
	if status != "" {
		msg += "\nSTATUS=" + status
	}
	if _, err = conn.Write([]byte(msg)); err != nil {
		return false, err
	}
	return true, nil
}
