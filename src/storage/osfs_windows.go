//go:build windows

package storage

import "golang.org/x/sys/windows"

func diskUsage(root string) (total, free uint64, err error) {
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return 0, 0, err
	}
	var avail, size, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &size, &totalFree); err != nil {
		return 0, 0, err
	}
	return size, avail, nil
}
