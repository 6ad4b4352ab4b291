package installer

import (
	"fmt"
	"strings"
)

// FailureKind enumerates the structured reasons a platform may give for a rejected install.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureAborted
	FailureBlocked
	FailureConflict
	FailureIncompatible
	FailureInvalid
	FailureStorage
)

func (k FailureKind) String() string {
	switch k {
	case FailureAborted:
		return "INSTALL_FAILURE_ABORTED"
	case FailureBlocked:
		return "INSTALL_FAILURE_BLOCKED"
	case FailureConflict:
		return "INSTALL_FAILURE_CONFLICT"
	case FailureIncompatible:
		return "INSTALL_FAILURE_INCOMPATIBLE"
	case FailureInvalid:
		return "INSTALL_FAILURE_INVALID"
	case FailureStorage:
		return "INSTALL_FAILURE_STORAGE"
	default:
		return "INSTALL_FAILURE"
	}
}

// FailureCause carries the platform's explanation of a failed install.
// OtherPackageName is only meaningful for Blocked and Conflict, StoragePath only for Storage.
type FailureCause struct {
	Kind             FailureKind
	Message          string
	OtherPackageName string
	StoragePath      string
}

// GenericCause builds a Generic failure cause.
func GenericCause(message string) *FailureCause {
	return &FailureCause{Kind: FailureGeneric, Message: message}
}

// AbortedCause builds an Aborted failure cause.
func AbortedCause(message string) *FailureCause {
	return &FailureCause{Kind: FailureAborted, Message: message}
}

func (c *FailureCause) String() string {
	if c == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(c.Kind.String())
	if c.Message != "" {
		b.WriteString(" | ")
		b.WriteString(c.Message)
	}
	switch c.Kind {
	case FailureBlocked, FailureConflict:
		if c.OtherPackageName != "" {
			fmt.Fprintf(&b, " | OTHER_PACKAGE_NAME = %s", c.OtherPackageName)
		}
	case FailureStorage:
		if c.StoragePath != "" {
			fmt.Fprintf(&b, " | STORAGE_PATH = %s", c.StoragePath)
		}
	}
	return b.String()
}

// InstallResult is either Success or a Failure with an optional cause.
// The legacy tier never attaches a cause.
type InstallResult struct {
	Success bool
	Cause   *FailureCause
}

// Succeeded is the Success result.
func Succeeded() InstallResult {
	return InstallResult{Success: true}
}

// Failed returns a Failure result; cause may be nil.
func Failed(cause *FailureCause) InstallResult {
	return InstallResult{Cause: cause}
}

func (r InstallResult) String() string {
	if r.Success {
		return "Success"
	}
	if r.Cause == nil {
		return "Failure"
	}
	return "Failure(" + r.Cause.String() + ")"
}

// Platform session status codes delivered to a StatusReceiver.
const (
	StatusPendingUserAction = -1
	StatusSuccess           = 0
	StatusFailure           = 1
	StatusFailureBlocked    = 2
	StatusFailureAborted    = 3
	StatusFailureInvalid    = 4
	StatusFailureConflict   = 5
	StatusFailureStorage    = 6
	StatusFailureIncompat   = 7
)

// SessionStatus is one signal from the asynchronous commit result channel.
type SessionStatus struct {
	SessionID        int
	Code             int
	Message          string
	OtherPackageName string
	StoragePath      string
	// Action is set when Code is StatusPendingUserAction.
	Action PendingAction
}

// FromStatus maps a terminal session status to an InstallResult.
// Unrecognized codes produce a Failure without cause.
func FromStatus(s SessionStatus) InstallResult {
	var kind FailureKind
	switch s.Code {
	case StatusSuccess:
		return Succeeded()
	case StatusFailure:
		kind = FailureGeneric
	case StatusFailureAborted:
		kind = FailureAborted
	case StatusFailureBlocked:
		kind = FailureBlocked
	case StatusFailureConflict:
		kind = FailureConflict
	case StatusFailureIncompat:
		kind = FailureIncompatible
	case StatusFailureInvalid:
		kind = FailureInvalid
	case StatusFailureStorage:
		kind = FailureStorage
	default:
		return Failed(nil)
	}

	cause := &FailureCause{Kind: kind, Message: s.Message}
	switch kind {
	case FailureBlocked, FailureConflict:
		cause.OtherPackageName = s.OtherPackageName
	case FailureStorage:
		cause.StoragePath = s.StoragePath
	}
	return Failed(cause)
}
