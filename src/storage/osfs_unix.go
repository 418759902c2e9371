//go:build linux || darwin || freebsd

package storage

import "golang.org/x/sys/unix"

func diskUsage(root string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, nil
}
