//go:build !windows

package system

import "golang.org/x/sys/unix"

func diskUsage(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, err
	}
	bsize := uint64(stat.Bsize)
	return DiskUsage{
		Total:     uint64(stat.Blocks) * bsize,
		Free:      uint64(stat.Bfree) * bsize,
		Available: uint64(stat.Bavail) * bsize,
	}, nil
}
