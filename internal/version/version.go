package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the version of the application, set by build flags
	Version = "dev"
	// Commit is the git commit hash, set by build flags
	Commit = "unknown"
	// BuildDate is the build date, set by build flags
	BuildDate = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	// go install builds carry the module version instead of ldflags.
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && Commit == "unknown":
			Commit = s.Value
		case s.Key == "vcs.time" && BuildDate == "unknown":
			BuildDate = s.Value
		}
	}
}

// Info returns version information
func Info() string {
	return fmt.Sprintf("ApkStore CLI %s\nCommit: %s\nBuilt: %s\nGo: %s\nOS/Arch: %s/%s",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with every HTTP request.
func UserAgent() string {
	return "ApkStore-CLI/" + Version
}
