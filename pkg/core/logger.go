package core

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogger implements Logger on top of a zerolog console writer
type DefaultLogger struct {
	log zerolog.Logger
}

// NewDefaultLogger creates a logger writing human-readable lines to w (stdout when nil)
func NewDefaultLogger(w io.Writer, debug bool) *DefaultLogger {
	if w == nil {
		w = os.Stdout
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return &DefaultLogger{log: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// With returns a child logger that tags every line with key=value
func (l *DefaultLogger) With(key, value string) *DefaultLogger {
	return &DefaultLogger{log: l.log.With().Str(key, value).Logger()}
}

// Printf logs at info level. Trailing newlines are dropped, zerolog adds its own.
func (l *DefaultLogger) Printf(format string, args ...interface{}) {
	l.log.Info().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

// Debugf logs at debug level
func (l *DefaultLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

// Infof logs at info level
func (l *DefaultLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

// Warnf logs at warning level
func (l *DefaultLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

type nopLogger struct{}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Printf(format string, args ...interface{}) {}
func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
