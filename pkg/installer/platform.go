package installer

import (
	"context"
	"io"
)

// SessionCallback observes progress of staged sessions.
type SessionCallback interface {
	OnProgressChanged(sessionID int, progress float64)
}

// SessionInfo is the last known state of a staged session.
type SessionInfo struct {
	SessionID int
	// Progress is in 0..1. Staging occupies the lower 0.8 of the range.
	Progress float64
}

// StatusReceiver accepts the asynchronous commit result. It may be called
// with StatusPendingUserAction before the terminal status.
type StatusReceiver interface {
	Deliver(status SessionStatus)
}

// PendingAction is attached to a StatusPendingUserAction status and relays
// the user's decision back to the platform.
type PendingAction interface {
	Consent(ctx context.Context, granted bool) error
}

// SessionBackend is a platform install-session primitive.
type SessionBackend interface {
	CreateSession(ctx context.Context) (int, error)
	// OpenWrite returns a handle that accepts exactly length bytes for one part.
	OpenWrite(ctx context.Context, sessionID int, name string, length int64) (io.WriteCloser, error)
	SetStagingProgress(sessionID int, progress float64)
	Commit(ctx context.Context, sessionID int, receiver StatusReceiver) error
	Abandon(sessionID int) error
	SessionInfo(sessionID int) (SessionInfo, bool)
	RegisterCallback(cb SessionCallback)
	UnregisterCallback(cb SessionCallback)
}

// LegacyBackend installs a single package file through the platform's
// implicit install flow and reports only whether it worked.
type LegacyBackend interface {
	InstallPackage(ctx context.Context, path string) (bool, error)
}

// UninstallBackend removes an installed package.
type UninstallBackend interface {
	UninstallPackage(ctx context.Context, packageName string) (bool, error)
}

// ConfirmationKind says what the user is asked to approve.
type ConfirmationKind int

const (
	ConfirmInstall ConfirmationKind = iota
	ConfirmUninstall
)

func (k ConfirmationKind) String() string {
	if k == ConfirmUninstall {
		return "uninstall"
	}
	return "install"
}

// ConfirmationRequest describes one human approval step.
type ConfirmationRequest struct {
	Kind        ConfirmationKind
	SessionID   int
	PackageName string
	Label       string
	Parts       int
}

// ConfirmationPrompt is the human in the loop. Request blocks until the
// user answers or ctx is done.
type ConfirmationPrompt interface {
	Request(ctx context.Context, req ConfirmationRequest) (bool, error)
}

// Notification is posted for the Deferred strategy. OnTap opens the prompt.
type Notification struct {
	Icon  []byte
	Title string
	Text  string
	OnTap func()
}

// Notifier posts and cancels confirmation notifications.
type Notifier interface {
	Post(n Notification) (int, error)
	Cancel(id int)
}

// ArchiveInspector extracts display metadata from an APK file.
type ArchiveInspector interface {
	Label(path string) (string, bool)
	Icon(path string) ([]byte, bool)
}

// PackageLabeler resolves the display label of an installed package.
type PackageLabeler interface {
	PackageLabel(packageName string) (string, bool)
}
