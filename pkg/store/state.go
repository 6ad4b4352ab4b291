package store

import (
	"fmt"

	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

// InstallationState is one event of the download and install pipeline.
// The concrete types are the Download* and Install* structs of this package.
type InstallationState interface {
	fmt.Stringer
	installationState()
}

// DownloadStarted is emitted once before any byte is fetched.
type DownloadStarted struct {
	App StoreApp
}

// DownloadProgress is emitted per received chunk. TotalBytes is -1 when the
// server did not announce a length.
type DownloadProgress struct {
	App         StoreApp
	Percent     int
	BytesCopied int64
	TotalBytes  int64
}

// DownloadCompleted carries the validated file.
type DownloadCompleted struct {
	App  StoreApp
	File string
	Info *apk.Info
}

// DownloadErrorKind classifies a failed download.
type DownloadErrorKind int

const (
	DownloadErrorGeneric DownloadErrorKind = iota
	DownloadErrorServer
	DownloadErrorMalformedFile
)

// DownloadError ends a download that did not produce a valid file.
type DownloadError struct {
	App  StoreApp
	Kind DownloadErrorKind
	// Message is set for DownloadErrorGeneric.
	Message string
	// StatusCode is set for DownloadErrorServer.
	StatusCode int
}

// InstallStarted is emitted when an install session is requested.
type InstallStarted struct{}

// InstallProgress mirrors the installer's progress.
type InstallProgress struct {
	Progress installer.ProgressData
}

// InstallCompleted carries the single terminal result of an install.
type InstallCompleted struct {
	Result installer.InstallResult
}

// UninstallStarted is emitted when an uninstall session is requested.
type UninstallStarted struct {
	PackageName string
}

// UninstallCompleted carries the outcome of an uninstall.
type UninstallCompleted struct {
	PackageName string
	Success     bool
}

func (DownloadStarted) installationState()    {}
func (DownloadProgress) installationState()   {}
func (DownloadCompleted) installationState()  {}
func (DownloadError) installationState()      {}
func (InstallStarted) installationState()     {}
func (InstallProgress) installationState()    {}
func (InstallCompleted) installationState()   {}
func (UninstallStarted) installationState()   {}
func (UninstallCompleted) installationState() {}

func (s DownloadStarted) String() string {
	return "Download.Started(" + s.App.PackageName + ")"
}

func (s DownloadProgress) String() string {
	return fmt.Sprintf("Download.Progress(%s, %d%%, %d/%d)", s.App.PackageName, s.Percent, s.BytesCopied, s.TotalBytes)
}

func (s DownloadCompleted) String() string {
	return fmt.Sprintf("Download.Completed(%s, %s)", s.App.PackageName, s.File)
}

func (s DownloadError) String() string {
	switch s.Kind {
	case DownloadErrorServer:
		return fmt.Sprintf("Download.Error(%s, ServerError(%d))", s.App.PackageName, s.StatusCode)
	case DownloadErrorMalformedFile:
		return fmt.Sprintf("Download.Error(%s, MalformedFile)", s.App.PackageName)
	default:
		return fmt.Sprintf("Download.Error(%s, GenericError(%s))", s.App.PackageName, s.Message)
	}
}

func (InstallStarted) String() string { return "Install.Started" }

func (s InstallProgress) String() string {
	return "Install.Progress(" + s.Progress.String() + ")"
}

func (s InstallCompleted) String() string {
	return "Install.Completed(" + s.Result.String() + ")"
}

func (s UninstallStarted) String() string {
	return "Uninstall.Started(" + s.PackageName + ")"
}

func (s UninstallCompleted) String() string {
	return fmt.Sprintf("Uninstall.Completed(%s, %t)", s.PackageName, s.Success)
}

// IsTerminal reports whether s ends a download, install or uninstall.
func IsTerminal(s InstallationState) bool {
	switch s.(type) {
	case DownloadCompleted, DownloadError, InstallCompleted, UninstallCompleted:
		return true
	}
	return false
}
