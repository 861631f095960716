// Package obslog wraps zerolog behind a small LoggingService interface so
// core packages depend on a contract, not a concrete logging library.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is one structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F is a short constructor for Field, meant to read well at call sites:
// log.Info("batch started", obslog.F("batchId", id)).
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LoggingService is the structured logging contract every core package
// depends on instead of importing zerolog directly.
type LoggingService interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warning(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
}

// Logger is the default LoggingService, backed by zerolog.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing to w (os.Stderr if nil) with level as the
// minimum level, e.g. "debug", "info", "warn", "error".
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole creates a Logger with zerolog's human-readable console writer,
// suited for CLI output rather than structured log aggregation.
func NewConsole(level string) *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level)
}

func apply(ev *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}

func (l *Logger) Debug(msg string, fields ...Field) {
	apply(l.zl.Debug(), fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields ...Field) {
	apply(l.zl.Info(), fields).Msg(msg)
}

func (l *Logger) Warning(msg string, fields ...Field) {
	apply(l.zl.Warn(), fields).Msg(msg)
}

func (l *Logger) Error(msg string, err error, fields ...Field) {
	apply(l.zl.Error().Err(err), fields).Msg(msg)
}
