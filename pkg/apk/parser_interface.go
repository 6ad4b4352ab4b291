package apk

import (
	"path/filepath"
	"strings"
)

// Info is the manifest data the store needs from a package archive.
type Info struct {
	PackageName string
	Label       string
	VersionName string
	VersionCode int64
	MinSDK      int
	TargetSDK   int
	ABIs        []string
	Size        int64
	SHA256      string
}

// Parser reads package metadata from an archive on disk.
type Parser interface {
	ParseFile(path string) (*Info, error)
	Describe() ParserInfo
	CanParse(path string) bool
}

// ParserInfo contains information about a parser
type ParserInfo struct {
	Name      string
	Available bool
	Priority  int // Lower number = higher priority
}

// IsAPKFile reports whether path names a single package archive.
func IsAPKFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".apk")
}

// IsBundleFile reports whether path names an XAPK or APKM bundle.
func IsBundleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".xapk" || ext == ".apkm"
}
