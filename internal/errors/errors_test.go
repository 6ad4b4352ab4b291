package errors

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrorKeepsCause(t *testing.T) {
	err := WrapError(io.ErrUnexpectedEOF, ErrorTypeNetwork, "READ_FAILED", "read failed").
		WithContext("url", "https://example.com")

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, ErrorTypeNetwork, TypeOf(err))
	assert.Equal(t, "https://example.com", err.Context["url"])
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "VALIDATION", ErrorTypeValidation.String())
	assert.Equal(t, "NOT_FOUND", ErrorTypeNotFound.String())
	assert.Equal(t, "CAPABILITY", ErrorTypeCapability.String())
	assert.Equal(t, "CONCURRENCY", ErrorTypeConcurrency.String())
	assert.Equal(t, "UNKNOWN", (ErrorTypeConcurrency + 1).String())
}

func TestIsMatchesTypeAndCode(t *testing.T) {
	err := NewNotFoundError("APP_NOT_FOUND", "missing")
	wrapped := WrapError(err, ErrorTypeUnknown, "OUTER", "outer")

	assert.True(t, stderrors.Is(wrapped, NewNotFoundError("APP_NOT_FOUND", "other text")))
	assert.False(t, stderrors.Is(wrapped, NewNotFoundError("SESSION_NOT_FOUND", "missing")))
}

func TestHandleWithRecoveryAddsSuggestions(t *testing.T) {
	h := NewErrorHandler(nil)

	err := h.HandleWithRecovery(stderrors.New("plain failure"))
	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeUnknown, err.Type)

	adb := h.HandleWithRecovery(WrapError(stderrors.New(`exec: "adb": executable file not found in $PATH`),
		ErrorTypePlatform, "ADB_NOT_FOUND", "adb not found"))
	assert.Contains(t, adb.Suggestions, "Install Android platform-tools or set adb.path")

	stats := h.GetStats()
	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 1, stats.ErrorsByCode["ADB_NOT_FOUND"])

	assert.Nil(t, h.HandleWithRecovery(nil))
}

func TestReporterSavesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := NewErrorReporter(dir, "1.2.3", nil)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	cause := stderrors.New("connection reset")
	report := r.GenerateReport(WrapError(cause, ErrorTypeNetwork, "DOWNLOAD_FAILED", "download failed"),
		OperationContext{Command: "apkstore install", Arguments: []string{"com.nll.cb"}}, "")
	assert.Equal(t, "connection reset", report.Cause)
	assert.Equal(t, "1.2.3", report.Environment.AppVersion)

	path, err := r.SaveReport(report)
	require.NoError(t, err)
	assert.Equal(t, "error-20240501-103000-DOWNLOAD_FAILED.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Operation OperationContext `json:"operation"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "DOWNLOAD_FAILED", decoded.Error.Code)
	assert.Equal(t, []string{"com.nll.cb"}, decoded.Operation.Arguments)
}
