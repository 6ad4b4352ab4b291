package installer

import (
	"strconv"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

const (
	codeSessionActive    = "SESSION_ACTIVE"
	codeSplitUnsupported = "SPLIT_PACKAGES_UNSUPPORTED"
	codeSourceNotFound   = "APK_SOURCE_NOT_FOUND"
	codeUnsupportedURI   = "UNSUPPORTED_URI_SCHEME"
	codeLengthMismatch   = "APK_LENGTH_MISMATCH"
)

// Sentinels for errors.Is. Returned errors are fresh values carrying context,
// they match these by type and code.
var (
	ErrSessionActive    = apperrors.NewError(apperrors.ErrorTypeConcurrency, codeSessionActive, "another session is active")
	ErrSplitUnsupported = apperrors.NewError(apperrors.ErrorTypeCapability, codeSplitUnsupported, "split packages are not supported")
	ErrSourceNotFound   = apperrors.NewError(apperrors.ErrorTypeNotFound, codeSourceNotFound, "apk source not found")
	ErrUnsupportedURI   = apperrors.NewError(apperrors.ErrorTypeValidation, codeUnsupportedURI, "unsupported uri scheme")
	ErrLengthMismatch   = apperrors.NewError(apperrors.ErrorTypeValidation, codeLengthMismatch, "apk source length mismatch")
)

func sessionActiveError(kind string) error {
	return apperrors.NewConcurrencyError(codeSessionActive,
		"Can't "+kind+" while another "+kind+" session is active.")
}

func splitUnsupportedError(parts int) error {
	return apperrors.NewCapabilityError(codeSplitUnsupported,
		"Split packages are not supported by the legacy installer tier").
		WithContext("parts", strconv.Itoa(parts))
}

func sourceNotFoundError(name string, cause error) error {
	return apperrors.WrapError(cause, apperrors.ErrorTypeNotFound, codeSourceNotFound,
		"APK source is no longer available").
		WithContext("source", name)
}
