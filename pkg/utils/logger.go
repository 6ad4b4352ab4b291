package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel converts a config string such as "debug" to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "fatal":
		return LogLevelFatal, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	SetLevel(level LogLevel)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogFormat represents the log output format
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

// ParseLogFormat converts "text" or "json" to a LogFormat.
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return LogFormatJSON
	}
	return LogFormatText
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level       LogLevel
	Format      LogFormat
	Output      io.Writer
	FilePath    string
	EnableColor bool
}

// DefaultLoggerConfig returns a default logger configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LogLevelInfo,
		Format:      LogFormatText,
		Output:      os.Stderr,
		EnableColor: true,
	}
}

// StoreLogger adapts a zerolog.Logger to the printf-style Logger interface.
type StoreLogger struct {
	zl    zerolog.Logger
	level *levelVar
	file  *os.File
}

type levelVar struct {
	mu    sync.RWMutex
	level LogLevel
}

func (v *levelVar) get() LogLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(l LogLevel) {
	v.mu.Lock()
	v.level = l
	v.mu.Unlock()
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config *LoggerConfig) (*StoreLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if config.Format == LogFormatText {
		output = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    !config.EnableColor,
			TimeFormat: time.DateTime,
		}
	}

	logger := &StoreLogger{level: &levelVar{level: config.Level}}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		// The file always receives JSON lines.
		output = zerolog.MultiLevelWriter(output, file)
	}

	logger.zl = zerolog.New(output).With().Timestamp().Logger()
	return logger, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StoreLogger {
	return &StoreLogger{zl: zerolog.Nop(), level: &levelVar{level: LogLevelFatal}}
}

func (l *StoreLogger) event(level LogLevel) *zerolog.Event {
	if level < l.level.get() {
		return nil
	}
	return l.zl.WithLevel(level.zerolog())
}

func (l *StoreLogger) log(level LogLevel, msg string, args ...interface{}) {
	if e := l.event(level); e != nil {
		if len(args) > 0 {
			e.Msgf(msg, args...)
			return
		}
		e.Msg(msg)
	}
}

// Debug logs a debug message
func (l *StoreLogger) Debug(msg string, args ...interface{}) { l.log(LogLevelDebug, msg, args...) }

// Info logs an info message
func (l *StoreLogger) Info(msg string, args ...interface{}) { l.log(LogLevelInfo, msg, args...) }

// Warn logs a warning message
func (l *StoreLogger) Warn(msg string, args ...interface{}) { l.log(LogLevelWarn, msg, args...) }

// Error logs an error message
func (l *StoreLogger) Error(msg string, args ...interface{}) { l.log(LogLevelError, msg, args...) }

// Fatal logs a fatal message and exits
func (l *StoreLogger) Fatal(msg string, args ...interface{}) {
	l.log(LogLevelFatal, msg, args...)
	os.Exit(1)
}

// SetLevel sets the logging level for this logger and every child derived from it.
func (l *StoreLogger) SetLevel(level LogLevel) {
	l.level.set(level)
}

// WithField returns a logger with an additional field
func (l *StoreLogger) WithField(key string, value interface{}) Logger {
	return &StoreLogger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		level: l.level,
		file:  l.file,
	}
}

// WithFields returns a logger with additional fields
func (l *StoreLogger) WithFields(fields map[string]interface{}) Logger {
	return &StoreLogger{
		zl:    l.zl.With().Fields(fields).Logger(),
		level: l.level,
		file:  l.file,
	}
}

// Zerolog exposes the underlying logger for packages that log structured events directly.
func (l *StoreLogger) Zerolog() zerolog.Logger {
	return l.zl
}

// Close closes the logger and any open files
func (l *StoreLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(config *LoggerConfig) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
	return nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		l, _ := NewLogger(DefaultLoggerConfig())
		globalLogger = l
	}
	return globalLogger
}

// WithComponent returns the global logger annotated with a component name.
func WithComponent(component string) Logger {
	return GetGlobalLogger().WithField("component", component)
}

// Convenience functions for global logger
func Debug(msg string, args ...interface{}) {
	GetGlobalLogger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	GetGlobalLogger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	GetGlobalLogger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	GetGlobalLogger().Error(msg, args...)
}

func Fatal(msg string, args ...interface{}) {
	GetGlobalLogger().Fatal(msg, args...)
}
