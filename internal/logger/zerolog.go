// Package logger wraps zerolog with per-component child loggers and the two
// output formats the command line offers.
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Output formats accepted by NewFromConfig
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Fields are extra key/value pairs attached to a log event
type Fields map[string]interface{}

// Logger is a structured logger. Child loggers created with Component or
// With share the parent's writer and level.
type Logger struct {
	zl zerolog.Logger
}

// New creates a JSON logger writing to w at the given level
func New(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// NewFromConfig creates a logger for the configured format. Verbose enables
// debug events.
func NewFromConfig(format string, verbose bool, w io.Writer) (*Logger, error) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	switch format {
	case FormatJSON:
		return New(w, level), nil
	case FormatConsole, "":
		return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}, level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Component returns a child logger tagging every event with name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// With returns a child logger carrying fields on every event
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{zl: l.zl.With().Fields(map[string]interface{}(fields)).Logger()}
}

func (l *Logger) Debug(msg string, fields Fields) {
	l.zl.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *Logger) Info(msg string, fields Fields) {
	l.zl.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *Logger) Warn(msg string, fields Fields) {
	l.zl.Warn().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Error logs err with msg describing the failed operation
func (l *Logger) Error(err error, msg string, fields Fields) {
	l.zl.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}
