// Package system reads host facts the download pipeline checks before writing.
package system

import (
	"path/filepath"

	"github.com/dustin/go-humanize"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

// DiskUsage describes the filesystem holding a path, in bytes.
type DiskUsage struct {
	Total     uint64
	Free      uint64
	Available uint64
}

// Used returns the bytes in use.
func (u DiskUsage) Used() uint64 { return u.Total - u.Free }

// CheckDiskSpace returns usage of the filesystem holding path, which must exist.
func CheckDiskSpace(path string) (DiskUsage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DiskUsage{}, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "PATH_INVALID", "failed to resolve path").
			WithContext("path", path)
	}
	usage, err := diskUsage(abs)
	if err != nil {
		return DiskUsage{}, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "DISK_STAT_FAILED", "failed to read disk statistics").
			WithContext("path", abs)
	}
	return usage, nil
}

// EnsureSpace fails when fewer than need bytes are available at path.
// Unknown usage is not treated as a failure.
func EnsureSpace(path string, need uint64) error {
	usage, err := CheckDiskSpace(path)
	if err != nil || usage.Available >= need {
		return nil
	}
	return apperrors.NewFileSystemError("INSUFFICIENT_SPACE", "not enough disk space").
		WithContext("path", path).
		WithContext("needed", humanize.IBytes(need)).
		WithContext("available", humanize.IBytes(usage.Available)).
		WithSuggestion("Free up disk space or change store.download_dir")
}
