//go:build !linux && !darwin && !freebsd && !windows

package storage

func diskUsage(root string) (total, free uint64, err error) {
	return 0, 0, ErrUnsupported
}
