//go:build !aix && !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd && !solaris

package main

import (
	"fmt"
	"runtime"
)

func chuser(user string) error {
	return fmt.Errorf("cannot switch to user %q: not supported on %s", user, runtime.GOOS)
}
