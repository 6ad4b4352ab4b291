package store

import (
	"errors"
	"io/fs"
	"os"

	"github.com/huanfeng/apkstore-cli/pkg/apk"
)

// Decision is the outcome of the cache policy.
type Decision int

const (
	Download Decision = iota
	Reuse
)

func (d Decision) String() string {
	if d == Reuse {
		return "reuse"
	}
	return "download"
}

// CachedFile describes a previously downloaded package file.
type CachedFile struct {
	Exists bool
	// Valid is false when the file exists but does not parse.
	Valid       bool
	VersionCode int64
	Info        *apk.Info
}

// Decide says whether a cached file can be reused or the package must be
// downloaded again. installed is nil when the package is not on the device.
//
// A valid cached file is reused when nothing is installed. Otherwise it must
// be at least as new as the installed version and at least as new as the
// catalog version.
func Decide(cached CachedFile, installed *int64, remoteVersion int64) Decision {
	switch {
	case !cached.Exists:
		return Download
	case !cached.Valid:
		return Download
	case installed == nil:
		return Reuse
	case cached.VersionCode < *installed:
		return Download
	case cached.VersionCode < remoteVersion:
		return Download
	default:
		return Reuse
	}
}

// InspectCached parses the file at path, if any.
func InspectCached(path string, parser apk.Parser) CachedFile {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CachedFile{}
		}
		return CachedFile{Exists: true}
	}
	info, err := parser.ParseFile(path)
	if err != nil {
		return CachedFile{Exists: true}
	}
	return CachedFile{Exists: true, Valid: true, VersionCode: info.VersionCode, Info: info}
}
