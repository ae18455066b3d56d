package lottery

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DefaultLogger implements Logger on top of zerolog
type DefaultLogger struct {
	zl zerolog.Logger
}

// NewDefaultLogger creates a logger writing JSON lines to stderr at debug level
func NewDefaultLogger() *DefaultLogger {
	return NewLoggerWithWriter(os.Stderr, zerolog.DebugLevel)
}

// NewLoggerWithWriter creates a logger writing to w at the given level
func NewLoggerWithWriter(w io.Writer, level zerolog.Level) *DefaultLogger {
	return &DefaultLogger{
		zl: zerolog.New(w).Level(level).With().Timestamp().Str("component", "lottery").Logger(),
	}
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) {
	l.zl.Info().Msgf(msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) {
	l.zl.Error().Msgf(msg, args...)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.zl.Debug().Msgf(msg, args...)
}

// SilentLogger implements Logger interface but does not output any logs
// This is useful for testing environments where log output is not desired
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

// Info does nothing (silent)
func (l *SilentLogger) Info(msg string, args ...any) {}

// Error does nothing (silent)
func (l *SilentLogger) Error(msg string, args ...any) {}

// Debug does nothing (silent)
func (l *SilentLogger) Debug(msg string, args ...any) {}
