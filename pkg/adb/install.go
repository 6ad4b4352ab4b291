package adb

import (
	"context"
	"regexp"
	"strings"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

var (
	failurePattern      = regexp.MustCompile(`Failure \[([A-Z0-9_]+)(?::\s*([^\]]*))?\]`)
	otherPackagePattern = regexp.MustCompile(`(?:owned by|conflicts with|already used by|in use by)\s+(?:package\s+)?([A-Za-z]\w*(?:\.\w+)+)`)
)

// InstallFailure is a package manager failure reported by adb.
type InstallFailure struct {
	// Reason is the INSTALL_FAILED_* or INSTALL_PARSE_FAILED_* token.
	Reason      string
	Detail      string
	Suggestions []string
}

type failureInfo struct {
	status      int
	message     string
	suggestions []string
}

var failureTable = map[string]failureInfo{
	"INSTALL_FAILED_ALREADY_EXISTS": {
		installer.StatusFailureConflict, "App already installed",
		[]string{"Uninstall the existing app first"},
	},
	"INSTALL_FAILED_DUPLICATE_PACKAGE": {
		installer.StatusFailureConflict, "Package is already installed elsewhere", nil,
	},
	"INSTALL_FAILED_UPDATE_INCOMPATIBLE": {
		installer.StatusFailureConflict, "Installed app is signed with a different key",
		[]string{"Uninstall the existing app first"},
	},
	"INSTALL_FAILED_SHARED_USER_INCOMPATIBLE": {
		installer.StatusFailureConflict, "Shared user is signed differently", nil,
	},
	"INSTALL_FAILED_REPLACE_COULDNT_DELETE": {
		installer.StatusFailureConflict, "Existing package could not be replaced", nil,
	},
	"INSTALL_FAILED_CONFLICTING_PROVIDER": {
		installer.StatusFailureConflict, "Content provider authority is taken", nil,
	},
	"INSTALL_FAILED_DUPLICATE_PERMISSION": {
		installer.StatusFailureConflict, "Permission is defined by another app", nil,
	},

	"INSTALL_FAILED_INSUFFICIENT_STORAGE": {
		installer.StatusFailureStorage, "Not enough storage space on device",
		[]string{"Free up storage space on the device", "Clear app caches and data"},
	},
	"INSTALL_FAILED_CONTAINER_ERROR": {
		installer.StatusFailureStorage, "Install container error", nil,
	},
	"INSTALL_FAILED_INVALID_INSTALL_LOCATION": {
		installer.StatusFailureStorage, "Install location is invalid", nil,
	},
	"INSTALL_FAILED_MEDIA_UNAVAILABLE": {
		installer.StatusFailureStorage, "Install media is unavailable", nil,
	},

	"INSTALL_FAILED_INVALID_APK": {
		installer.StatusFailureInvalid, "APK file is invalid or corrupted",
		[]string{"Re-download the APK file", "Verify APK file integrity"},
	},
	"INSTALL_FAILED_INVALID_URI": {
		installer.StatusFailureInvalid, "Package location is invalid", nil,
	},
	"INSTALL_FAILED_DEXOPT": {
		installer.StatusFailureInvalid, "Dex optimization failed", nil,
	},
	"INSTALL_FAILED_TEST_ONLY": {
		installer.StatusFailureInvalid, "Test-only packages are not accepted", nil,
	},
	"INSTALL_FAILED_PACKAGE_CHANGED": {
		installer.StatusFailureInvalid, "Package changed while installing", nil,
	},
	"INSTALL_FAILED_UID_CHANGED": {
		installer.StatusFailureInvalid, "Package uid changed", nil,
	},
	"INSTALL_FAILED_VERSION_DOWNGRADE": {
		installer.StatusFailureInvalid, "Cannot downgrade app version",
		[]string{"Uninstall the existing app first", "Install a newer version instead"},
	},

	"INSTALL_FAILED_OLDER_SDK": {
		installer.StatusFailureIncompat, "APK requires higher Android version",
		[]string{"Find a version compatible with your Android version"},
	},
	"INSTALL_FAILED_NEWER_SDK": {
		installer.StatusFailureIncompat, "APK targets an older Android version", nil,
	},
	"INSTALL_FAILED_MISSING_SHARED_LIBRARY": {
		installer.StatusFailureIncompat, "Required shared library not found",
		[]string{"Check device compatibility"},
	},
	"INSTALL_FAILED_CPU_ABI_INCOMPATIBLE": {
		installer.StatusFailureIncompat, "APK architecture not compatible with device", nil,
	},
	"INSTALL_FAILED_MISSING_FEATURE": {
		installer.StatusFailureIncompat, "Device lacks a required feature", nil,
	},
	"INSTALL_FAILED_USER_RESTRICTED": {
		installer.StatusFailureIncompat, "User is restricted from installing apps", nil,
	},
	"INSTALL_FAILED_NO_MATCHING_ABIS": {
		installer.StatusFailureIncompat, "APK architecture not compatible with device",
		[]string{"Download APK for correct architecture (ARM, x86, etc.)", "Use universal APK if available"},
	},
	"INSTALL_FAILED_MISSING_SPLIT": {
		installer.StatusFailureIncompat, "A required split is missing", nil,
	},

	"INSTALL_FAILED_VERIFICATION_TIMEOUT": {
		installer.StatusFailureAborted, "Package verification timed out", nil,
	},
	"INSTALL_FAILED_VERIFICATION_FAILURE": {
		installer.StatusFailureAborted, "Package verification failed", nil,
	},
	"INSTALL_FAILED_ABORTED": {
		installer.StatusFailureAborted, "Installation was aborted", nil,
	},
}

// classify maps a package manager failure token to a session status code.
func classify(reason string) failureInfo {
	if info, ok := failureTable[reason]; ok {
		return info
	}
	switch {
	case strings.Contains(reason, "DEVICE_POLICY"):
		return failureInfo{status: installer.StatusFailureBlocked, message: "Blocked by device policy"}
	case strings.HasPrefix(reason, "INSTALL_PARSE_FAILED"):
		return failureInfo{status: installer.StatusFailureInvalid, message: "APK could not be parsed",
			suggestions: []string{"Re-download the APK file"}}
	}
	return failureInfo{status: installer.StatusFailure}
}

// parseFailure extracts the failure from adb output. ok is false when the
// output carries no Failure marker.
func parseFailure(output string) (InstallFailure, bool) {
	m := failurePattern.FindStringSubmatch(output)
	if m == nil {
		return InstallFailure{}, false
	}
	f := InstallFailure{Reason: m[1], Detail: strings.TrimSpace(m[2])}
	f.Suggestions = classify(f.Reason).suggestions
	return f, true
}

// status converts the failure into a terminal session status.
func (f InstallFailure) status(sessionID int) installer.SessionStatus {
	info := classify(f.Reason)
	message := f.Detail
	if message == "" {
		message = info.message
	}
	if message == "" {
		message = f.Reason
	}
	s := installer.SessionStatus{SessionID: sessionID, Code: info.status, Message: message}
	switch info.status {
	case installer.StatusFailureConflict, installer.StatusFailureBlocked:
		if m := otherPackagePattern.FindStringSubmatch(f.Detail); m != nil {
			s.OtherPackageName = m[1]
		}
	case installer.StatusFailureStorage:
		s.StoragePath = "/data"
	}
	return s
}

func (f InstallFailure) Error() string {
	if f.Detail == "" {
		return f.Reason
	}
	return f.Reason + ": " + f.Detail
}

// InstallPackage installs one file with `adb install -r`. A package manager
// rejection yields false without an error; the reason is logged.
func (c *Client) InstallPackage(ctx context.Context, path string) (bool, error) {
	unlock := c.lock()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InstallTimeout)
	defer cancel()

	args := []string{"install", "-r", path}
	out, errOut, err := c.run(ctx, nil, args...)
	combined := out + errOut
	if f, ok := parseFailure(combined); ok {
		c.logger.Warn("Install of %s failed: %s", path, f.Error())
		for _, s := range f.Suggestions {
			c.logger.Info("  - %s", s)
		}
		return false, nil
	}
	if err != nil {
		return false, commandError(args, err, errOut)
	}
	return strings.Contains(combined, "Success"), nil
}

// UninstallPackage removes a package with `pm uninstall`.
func (c *Client) UninstallPackage(ctx context.Context, packageName string) (bool, error) {
	if packageName == "" {
		return false, apperrors.NewValidationError("EMPTY_PACKAGE", "package name is required")
	}
	unlock := c.lock()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InstallTimeout)
	defer cancel()

	args := []string{"shell", "pm", "uninstall"}
	if c.cfg.User != "" {
		args = append(args, "--user", c.cfg.User)
	}
	args = append(args, packageName)

	out, errOut, err := c.run(ctx, nil, args...)
	combined := out + errOut
	if strings.Contains(combined, "Success") {
		return true, nil
	}
	if strings.Contains(combined, "Failure") {
		c.logger.Warn("Uninstall of %s failed: %s", packageName, strings.TrimSpace(combined))
		return false, nil
	}
	if err != nil {
		return false, commandError(args, err, errOut)
	}
	return false, nil
}
