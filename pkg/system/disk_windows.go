//go:build windows

package system

import "golang.org/x/sys/windows"

func diskUsage(path string) (DiskUsage, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskUsage{}, err
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &available, &total, &free); err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{Total: total, Free: free, Available: available}, nil
}
