package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeNetwork
	ErrorTypeFileSystem
	ErrorTypeParsing
	ErrorTypeConfiguration
	ErrorTypePlatform
	ErrorTypePermission
	ErrorTypeTimeout
	ErrorTypeNotFound
	ErrorTypeCapability
	ErrorTypeConcurrency
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeNetwork:
		return "NETWORK"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeParsing:
		return "PARSING"
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypePlatform:
		return "PLATFORM"
	case ErrorTypePermission:
		return "PERMISSION"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeCapability:
		return "CAPABILITY"
	case ErrorTypeConcurrency:
		return "CONCURRENCY"
	default:
		return "UNKNOWN"
	}
}

// StoreError represents an error with context and suggestions
type StoreError struct {
	Type        ErrorType         `json:"type"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Cause       error             `json:"cause,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Stack       []string          `json:"stack,omitempty"`
	Retryable   bool              `json:"retryable"`
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StoreError with the same type and code.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error
func (e *StoreError) WithContext(key, value string) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *StoreError) WithSuggestion(suggestion string) *StoreError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *StoreError) WithSuggestions(suggestions []string) *StoreError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// SetRetryable marks the error as retryable or not
func (e *StoreError) SetRetryable(retryable bool) *StoreError {
	e.Retryable = retryable
	return e
}

// FormatDetailed returns a detailed error message with context and suggestions
func (e *StoreError) FormatDetailed() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("❌ %s Error [%s]: %s\n", e.Type.String(), e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for key := range e.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		builder.WriteString("\n📋 Context:\n")
		for _, key := range keys {
			builder.WriteString(fmt.Sprintf("   %s: %s\n", key, e.Context[key]))
		}
	}

	if e.Cause != nil {
		builder.WriteString(fmt.Sprintf("\n🔍 Underlying cause: %v\n", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		builder.WriteString("\n💡 Suggestions:\n")
		for _, suggestion := range e.Suggestions {
			builder.WriteString(fmt.Sprintf("   • %s\n", suggestion))
		}
	}

	if e.Retryable {
		builder.WriteString("\n🔄 This operation can be retried\n")
	}

	return builder.String()
}

// NewError creates a new StoreError
func NewError(errorType ErrorType, code, message string) *StoreError {
	return &StoreError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Stack:     captureStack(),
	}
}

// WrapError wraps an existing error with StoreError
func WrapError(err error, errorType ErrorType, code, message string) *StoreError {
	return &StoreError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Stack:     captureStack(),
	}
}

// TypeOf returns the ErrorType of the first StoreError in err's chain.
func TypeOf(err error) ErrorType {
	var storeErr *StoreError
	if stderrors.As(err, &storeErr) {
		return storeErr.Type
	}
	return ErrorTypeUnknown
}

// captureStack captures the current stack trace
func captureStack() []string {
	var stack []string

	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		if strings.Contains(file, "apkstore-cli") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}

	return stack
}

// Common error constructors

// NewValidationError creates a validation error
func NewValidationError(code, message string) *StoreError {
	return NewError(ErrorTypeValidation, code, message).
		WithSuggestion("Check the input parameters and try again")
}

// NewNetworkError creates a network error
func NewNetworkError(code, message string) *StoreError {
	return NewError(ErrorTypeNetwork, code, message).
		SetRetryable(true).
		WithSuggestions([]string{
			"Check your internet connection",
			"Verify the store server is accessible",
			"Try again in a few moments",
		})
}

// NewFileSystemError creates a filesystem error
func NewFileSystemError(code, message string) *StoreError {
	return NewError(ErrorTypeFileSystem, code, message).
		WithSuggestions([]string{
			"Check file permissions",
			"Ensure the path exists",
			"Verify disk space availability",
		})
}

// NewParsingError creates a parsing error
func NewParsingError(code, message string) *StoreError {
	return NewError(ErrorTypeParsing, code, message).
		WithSuggestions([]string{
			"Verify the file is an Android package",
			"Delete the cached file and download it again",
		})
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *StoreError {
	return NewError(ErrorTypeConfiguration, code, message).
		WithSuggestions([]string{
			"Check the configuration file syntax",
			"Run 'apkstore config init' to regenerate configuration",
		})
}

// NewPlatformError creates an error raised by the install backend
func NewPlatformError(code, message string) *StoreError {
	return NewError(ErrorTypePlatform, code, message).
		WithSuggestions([]string{
			"Check device connection with 'adb devices'",
			"Enable USB debugging and authorize this computer",
		})
}

// NewPermissionError creates a permission error
func NewPermissionError(code, message string) *StoreError {
	return NewError(ErrorTypePermission, code, message)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(code, message string) *StoreError {
	return NewError(ErrorTypeTimeout, code, message).
		SetRetryable(true).
		WithSuggestion("Increase http.timeout in the configuration")
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string) *StoreError {
	return NewError(ErrorTypeNotFound, code, message).
		WithSuggestions([]string{
			"Verify the resource exists",
			"Check the path or identifier",
		})
}

// NewCapabilityError creates an error for a feature the selected backend tier lacks
func NewCapabilityError(code, message string) *StoreError {
	return NewError(ErrorTypeCapability, code, message).
		WithSuggestion("Switch installer.tier to 'staged' to install split packages")
}

// NewConcurrencyError creates an error for a second session started while one is active
func NewConcurrencyError(code, message string) *StoreError {
	return NewError(ErrorTypeConcurrency, code, message).
		SetRetryable(true).
		WithSuggestion("Wait for the active session to finish or cancel it")
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	mu     sync.Mutex
	logger Logger
	stats  *ErrorStats
}

// Logger interface for error logging
type Logger interface {
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ErrorStats tracks error statistics
type ErrorStats struct {
	TotalErrors   int               `json:"total_errors"`
	ErrorsByType  map[ErrorType]int `json:"errors_by_type"`
	ErrorsByCode  map[string]int    `json:"errors_by_code"`
	LastError     *StoreError       `json:"last_error,omitempty"`
	LastErrorTime time.Time         `json:"last_error_time"`
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		stats: &ErrorStats{
			ErrorsByType: make(map[ErrorType]int),
			ErrorsByCode: make(map[string]int),
		},
	}
}

// Handle handles an error with logging and statistics
func (eh *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	storeErr := asStoreError(err)
	eh.updateStats(storeErr)

	if eh.logger != nil {
		eh.logger.Error("Error occurred: %s [%s] %s", storeErr.Type.String(), storeErr.Code, storeErr.Message)
		for key, value := range storeErr.Context {
			eh.logger.Debug("Error context: %s = %s", key, value)
		}
	}
}

// HandleWithRecovery handles an error and provides recovery suggestions
func (eh *ErrorHandler) HandleWithRecovery(err error) *StoreError {
	if err == nil {
		return nil
	}

	storeErr := asStoreError(err)
	eh.addRecoverySuggestions(storeErr)
	eh.Handle(storeErr)

	return storeErr
}

func asStoreError(err error) *StoreError {
	var storeErr *StoreError
	if stderrors.As(err, &storeErr) {
		return storeErr
	}
	return WrapError(err, ErrorTypeUnknown, "UNKNOWN", err.Error())
}

func (eh *ErrorHandler) updateStats(err *StoreError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.stats.TotalErrors++
	eh.stats.ErrorsByType[err.Type]++
	eh.stats.ErrorsByCode[err.Code]++
	eh.stats.LastError = err
	eh.stats.LastErrorTime = time.Now()
}

// addRecoverySuggestions adds recovery suggestions based on error patterns
func (eh *ErrorHandler) addRecoverySuggestions(err *StoreError) {
	msg := strings.ToLower(err.Error())

	switch err.Type {
	case ErrorTypeNetwork:
		if strings.Contains(msg, "timeout") {
			err.WithSuggestion("Consider increasing the timeout value")
		}
		if strings.Contains(msg, "429") {
			err.WithSuggestion("The store is rate limiting requests, wait before retrying")
		}
	case ErrorTypeFileSystem:
		if strings.Contains(msg, "permission denied") {
			err.WithSuggestion("Run with elevated privileges or check file permissions")
		}
		if strings.Contains(msg, "no space left") {
			err.WithSuggestion("Free up disk space and try again")
		}
	case ErrorTypePlatform:
		if strings.Contains(msg, "executable file not found") {
			err.WithSuggestion("Install Android platform-tools or set adb.path")
		}
	}
}

// GetStats returns a copy of the error statistics
func (eh *ErrorHandler) GetStats() ErrorStats {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	stats := *eh.stats
	stats.ErrorsByType = make(map[ErrorType]int, len(eh.stats.ErrorsByType))
	for k, v := range eh.stats.ErrorsByType {
		stats.ErrorsByType[k] = v
	}
	stats.ErrorsByCode = make(map[string]int, len(eh.stats.ErrorsByCode))
	for k, v := range eh.stats.ErrorsByCode {
		stats.ErrorsByCode[k] = v
	}
	return stats
}

// Reset resets error statistics
func (eh *ErrorHandler) Reset() {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.stats = &ErrorStats{
		ErrorsByType: make(map[ErrorType]int),
		ErrorsByCode: make(map[string]int),
	}
}

var globalErrorHandler *ErrorHandler

// InitGlobalErrorHandler initializes the global error handler
func InitGlobalErrorHandler(logger Logger) {
	globalErrorHandler = NewErrorHandler(logger)
}

// GetGlobalErrorHandler returns the global error handler
func GetGlobalErrorHandler() *ErrorHandler {
	if globalErrorHandler == nil {
		globalErrorHandler = NewErrorHandler(nil)
	}
	return globalErrorHandler
}

// Handle handles an error using the global error handler
func Handle(err error) {
	GetGlobalErrorHandler().Handle(err)
}

// HandleWithRecovery handles an error with recovery using the global error handler
func HandleWithRecovery(err error) *StoreError {
	return GetGlobalErrorHandler().HandleWithRecovery(err)
}
