//go:build android
// +build android

package mobile

import "log"

// MobileLogger sends log lines to logcat through the standard logger,
// which gomobile redirects.
type MobileLogger struct{}

func (MobileLogger) Write(p []byte) (n int, err error) {
	log.Print("rnsmesh: ", string(p))
	return len(p), nil
}
