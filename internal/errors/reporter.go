package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/renameio/v2"
)

// ErrorReport is a snapshot of a failed command written for bug reports.
type ErrorReport struct {
	Timestamp   time.Time        `json:"timestamp"`
	Error       *StoreError      `json:"error"`
	Cause       string           `json:"cause,omitempty"`
	Environment EnvironmentInfo  `json:"environment"`
	Operation   OperationContext `json:"operation"`
}

// EnvironmentInfo describes the host the command ran on.
type EnvironmentInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	GoVersion    string `json:"go_version"`
	AppVersion   string `json:"app_version"`
	WorkingDir   string `json:"working_dir,omitempty"`
	ConfigPath   string `json:"config_path,omitempty"`
}

// OperationContext describes the command that failed.
type OperationContext struct {
	Command   string        `json:"command"`
	Arguments []string      `json:"arguments,omitempty"`
	Device    string        `json:"device,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ErrorReporter writes error reports into reportDir.
type ErrorReporter struct {
	reportDir  string
	appVersion string
	logger     Logger
	now        func() time.Time
}

// NewErrorReporter creates a reporter. logger may be nil.
func NewErrorReporter(reportDir, appVersion string, logger Logger) *ErrorReporter {
	return &ErrorReporter{
		reportDir:  reportDir,
		appVersion: appVersion,
		logger:     logger,
		now:        time.Now,
	}
}

// GenerateReport collects err and the environment into a report.
func (er *ErrorReporter) GenerateReport(err error, op OperationContext, configPath string) *ErrorReport {
	storeErr := asStoreError(err)
	report := &ErrorReport{
		Timestamp: er.now(),
		Error:     storeErr,
		Environment: EnvironmentInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			GoVersion:    runtime.Version(),
			AppVersion:   er.appVersion,
			ConfigPath:   configPath,
		},
		Operation: op,
	}
	if storeErr.Cause != nil {
		report.Cause = storeErr.Cause.Error()
	}
	if wd, werr := os.Getwd(); werr == nil {
		report.Environment.WorkingDir = wd
	}
	return report
}

// SaveReport writes report as indented JSON and returns the file path.
func (er *ErrorReporter) SaveReport(report *ErrorReport) (string, error) {
	if err := os.MkdirAll(er.reportDir, 0o755); err != nil {
		return "", WrapError(err, ErrorTypeFileSystem, "REPORT_DIR_FAILED", "failed to create report directory").
			WithContext("path", er.reportDir)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", WrapError(err, ErrorTypeParsing, "REPORT_ENCODE_FAILED", "failed to encode error report")
	}

	name := fmt.Sprintf("error-%s-%s.json", report.Timestamp.Format("20060102-150405"), report.Error.Code)
	path := filepath.Join(er.reportDir, name)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", WrapError(err, ErrorTypeFileSystem, "REPORT_WRITE_FAILED", "failed to write error report").
			WithContext("path", path)
	}
	if er.logger != nil {
		er.logger.Debug("Error report saved to %s", path)
	}
	return path, nil
}
