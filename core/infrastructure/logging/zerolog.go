package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/yetii/yetii/core/domain/interfaces"
)

const (
	LogLevelError = 1
	LogLevelWarn  = 2
	LogLevelInfo  = 3
	LogLevelDebug = 4
)

// Output formats accepted by SetFormat.
const (
	FormatPretty = "pretty"
	FormatPlain  = "plain"
	FormatJSON   = "json"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z"

var (
	globalLogLevel = LogLevelInfo
	logLevelMutex  sync.RWMutex

	tagFilter      []string
	tagFilterMutex sync.RWMutex

	outputMutex  sync.RWMutex
	logFile      *os.File
	logWriter    io.Writer = os.Stderr
	outputFormat           = FormatPretty
)

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if level >= LogLevelError && level <= LogLevelDebug {
		globalLogLevel = level
		zerolog.SetGlobalLevel(convertLogLevel(level))
	}
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return globalLogLevel
}

// ParseLevel maps a settings.logging.level name onto a numeric log level.
// "trace" folds into DEBUG.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info", "":
		return LogLevelInfo, nil
	case "debug", "trace":
		return LogLevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level '%s'", name)
	}
}

// SetFormat selects pretty, plain or json output.
func SetFormat(format string) {
	outputMutex.Lock()
	defer outputMutex.Unlock()
	switch format {
	case FormatJSON, FormatPlain, FormatPretty:
		outputFormat = format
	}
}

// SetOutput redirects all loggers created afterwards to w.
func SetOutput(w io.Writer) {
	outputMutex.Lock()
	defer outputMutex.Unlock()
	logWriter = w
}

// SetTagFilter sets the tag filter from a comma-separated string
func SetTagFilter(filterStr string) {
	tagFilterMutex.Lock()
	defer tagFilterMutex.Unlock()

	if filterStr == "" {
		tagFilter = nil
		return
	}

	tags := strings.Split(filterStr, ",")
	tagFilter = make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tagFilter = append(tagFilter, tag)
		}
	}
}

// shouldLogTag checks if a tag should be logged based on the filter.
// A "-tag" entry excludes the tag and its sub-tags; plain entries form an allow list.
func shouldLogTag(tag string) bool {
	tagFilterMutex.RLock()
	defer tagFilterMutex.RUnlock()

	if len(tagFilter) == 0 {
		return true
	}

	for _, filterTag := range tagFilter {
		if excludeTag, ok := strings.CutPrefix(filterTag, "-"); ok {
			if tag == excludeTag || strings.HasPrefix(tag, excludeTag+":") {
				return false
			}
		}
	}

	hasInclusion := false
	for _, filterTag := range tagFilter {
		if strings.HasPrefix(filterTag, "-") {
			continue
		}
		hasInclusion = true
		if tag == filterTag || strings.HasPrefix(tag, filterTag+":") {
			return true
		}
	}

	return !hasInclusion
}

// SetLogFile tees log output into a new file under dir and returns its path.
func SetLogFile(dir string) (string, error) {
	outputMutex.Lock()
	defer outputMutex.Unlock()

	if dir == "" {
		dir = filepath.Join(os.TempDir(), ".yetii", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("yetii-%s-%s.log", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	filePath := filepath.Join(dir, filename)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}

	logFile = file
	logWriter = io.MultiWriter(logWriter, file)
	return filePath, nil
}

// CloseLogFile closes the log file if it's open
func CloseLogFile() error {
	outputMutex.Lock()
	defer outputMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logWriter = os.Stderr
	return err
}

// ZerologLogger implements the Logger interface using zerolog
type ZerologLogger struct {
	tag    string
	logger zerolog.Logger
}

// Logger is the interface exported from this package
type Logger = interfaces.Logger

// New creates a new logger instance with a tag
func New(tag string) Logger {
	if !shouldLogTag(tag) {
		return &noOpLogger{}
	}

	outputMutex.RLock()
	w, format := logWriter, outputFormat
	outputMutex.RUnlock()

	var output io.Writer = w
	switch {
	case format == FormatJSON:
	case format == FormatPlain || !isInteractive():
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: true}
	default:
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}

	return &ZerologLogger{
		tag:    tag,
		logger: zerolog.New(output).With().Timestamp().Str("tag", tag).Logger(),
	}
}

// isInteractive checks if the output is going to a terminal
func isInteractive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// convertLogLevel converts our log level to zerolog level
func convertLogLevel(level int) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZerologLogger) enabled(level int) bool {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return level <= globalLogLevel
}

// Error logs at ERROR level
func (l *ZerologLogger) Error(message string) {
	if l.enabled(LogLevelError) {
		l.logger.Error().Msg(message)
	}
}

// Errorf logs at ERROR level with formatting
func (l *ZerologLogger) Errorf(format string, args ...any) {
	if l.enabled(LogLevelError) {
		l.logger.Error().Msgf(format, args...)
	}
}

// Warn logs at WARN level
func (l *ZerologLogger) Warn(message string) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn().Msg(message)
	}
}

// Warnf logs at WARN level with formatting
func (l *ZerologLogger) Warnf(format string, args ...any) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn().Msgf(format, args...)
	}
}

// Info logs at INFO level
func (l *ZerologLogger) Info(message string) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info().Msg(message)
	}
}

// Infof logs at INFO level with formatting
func (l *ZerologLogger) Infof(format string, args ...any) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info().Msgf(format, args...)
	}
}

// Success logs regardless of the configured level
func (l *ZerologLogger) Success(message string) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "success").Msg(message)
}

// Successf logs regardless of the configured level
func (l *ZerologLogger) Successf(format string, args ...any) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "success").Msgf(format, args...)
}

// Debug logs at DEBUG level
func (l *ZerologLogger) Debug(message string) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug().Msg(message)
	}
}

// Debugf logs at DEBUG level with formatting
func (l *ZerologLogger) Debugf(format string, args ...any) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug().Msgf(format, args...)
	}
}

// With returns a child logger carrying key=value
func (l *ZerologLogger) With(key string, value any) Logger {
	return &ZerologLogger{
		tag:    l.tag,
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// noOpLogger is a no-op logger for filtered tags
type noOpLogger struct{}

func (n *noOpLogger) Error(string)            {}
func (n *noOpLogger) Errorf(string, ...any)   {}
func (n *noOpLogger) Warn(string)             {}
func (n *noOpLogger) Warnf(string, ...any)    {}
func (n *noOpLogger) Info(string)             {}
func (n *noOpLogger) Infof(string, ...any)    {}
func (n *noOpLogger) Success(string)          {}
func (n *noOpLogger) Successf(string, ...any) {}
func (n *noOpLogger) Debug(string)            {}
func (n *noOpLogger) Debugf(string, ...any)   {}
func (n *noOpLogger) With(string, any) Logger { return n }
