package logger

import (
	"fmt"

	"github.com/yetii/yetii/core/infrastructure/logging"
)

const (
	LogLevelError = logging.LogLevelError
	LogLevelWarn  = logging.LogLevelWarn
	LogLevelInfo  = logging.LogLevelInfo
	LogLevelDebug = logging.LogLevelDebug
)

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logging.SetLogLevel(level)
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	return logging.GetLogLevel()
}

// ParseLevel maps a level name onto a numeric log level
func ParseLevel(name string) (int, error) {
	return logging.ParseLevel(name)
}

// SetFormat selects pretty, plain or json log output
func SetFormat(format string) {
	logging.SetFormat(format)
}

// SetTagFilter sets the tag filter
func SetTagFilter(filterStr string) {
	logging.SetTagFilter(filterStr)
}

// SetLogFile enables log file streaming into dir ("" picks a temp directory)
func SetLogFile(dir string) (string, error) {
	return logging.SetLogFile(dir)
}

// CloseLogFile closes the log file
func CloseLogFile() error {
	return logging.CloseLogFile()
}

// Logger is the tagged logger used by CLI code.
type Logger struct {
	tag  string
	impl logging.Logger
}

// New creates a new logger instance with a tag
func New(tag string) *Logger {
	return &Logger{
		tag:  tag,
		impl: logging.New(tag),
	}
}

// Tag returns the logger's tag.
func (l *Logger) Tag() string {
	return l.tag
}

// Error logs at ERROR level
func (l *Logger) Error(message string) {
	l.impl.Error(message)
}

// Errorf returns a formatted error tagged with this logger's tag. It does not log:
// the error is logged once where it leaves the CLI.
func (l *Logger) Errorf(format string, args ...any) error {
	return WithTag(l.tag, fmt.Errorf(format, args...))
}

// Warn logs at WARN level
func (l *Logger) Warn(message string) {
	l.impl.Warn(message)
}

// Warnf logs at WARN level with formatting
func (l *Logger) Warnf(format string, args ...any) {
	l.impl.Warnf(format, args...)
}

// Info logs at INFO level
func (l *Logger) Info(message string) {
	l.impl.Info(message)
}

// Infof logs at INFO level with formatting
func (l *Logger) Infof(format string, args ...any) {
	l.impl.Infof(format, args...)
}

// Success logs regardless of the configured level
func (l *Logger) Success(message string) {
	l.impl.Success(message)
}

// Successf logs regardless of the configured level
func (l *Logger) Successf(format string, args ...any) {
	l.impl.Successf(format, args...)
}

// Debug logs at DEBUG level
func (l *Logger) Debug(message string) {
	l.impl.Debug(message)
}

// Debugf logs at DEBUG level with formatting
func (l *Logger) Debugf(format string, args ...any) {
	l.impl.Debugf(format, args...)
}
