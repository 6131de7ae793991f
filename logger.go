package formstage

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides a simple interface for engine logging
type Logger interface {
	// Debug logs a message at debug level
	Debug(format string, args ...interface{})

	// Info logs a message at info level
	Info(format string, args ...interface{})

	// Warn logs a message at warning level
	Warn(format string, args ...interface{})

	// Error logs a message at error level
	Error(format string, args ...interface{})
}

// DefaultLogger is a no-op logger implementation
type DefaultLogger struct{}

// Debug implements Logger.Debug
func (l *DefaultLogger) Debug(format string, args ...interface{}) {}

// Info implements Logger.Info
func (l *DefaultLogger) Info(format string, args ...interface{}) {}

// Warn implements Logger.Warn
func (l *DefaultLogger) Warn(format string, args ...interface{}) {}

// Error implements Logger.Error
func (l *DefaultLogger) Error(format string, args ...interface{}) {}

// NewDefaultLogger creates a new default no-op logger
func NewDefaultLogger() Logger {
	return &DefaultLogger{}
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

// NewStructuredLogger builds a zerolog-backed Logger writing to w. format "console" renders
// human-readable lines; anything else writes JSON. level is a zerolog level name and falls back
// to info.
func NewStructuredLogger(w io.Writer, format, level string) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	log := zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", "formstage").
		Logger()
	return NewZerologLogger(log)
}

// Zerolog exposes the underlying logger for callers that want structured fields.
func (l *ZerologLogger) Zerolog() *zerolog.Logger {
	return &l.log
}

// Debug implements Logger.Debug
func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

// Info implements Logger.Info
func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

// Warn implements Logger.Warn
func (l *ZerologLogger) Warn(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

// Error implements Logger.Error
func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}
