// Package swarmlog wraps zerolog with a small bound-field shape: a base
// logger that components derive child loggers from by binding a handful of
// static fields (component name, device address) before emitting
// info/warn/error records.
package swarmlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger keeps call sites one-liners while still emitting structured
// fields.
type Logger struct {
	z zerolog.Logger
}

// New builds a logger writing to w (os.Stderr in production, a buffer in
// tests) bound with an initial "context" field.
func New(w io.Writer, context string) *Logger {
	z := zerolog.New(w).With().Timestamp().Str("context", context).Logger()
	return &Logger{z: z}
}

// Default returns a Logger writing to stderr, for callers that don't need
// a custom sink (CLI entry points, tests that don't inspect output).
func Default(context string) *Logger {
	return New(os.Stderr, context)
}

// Bind returns a derived logger with an additional static field.
func (l *Logger) Bind(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

func fields(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func (l *Logger) Info(msg string, kv ...any) {
	fields(l.z.Info(), kv).Msg(msg)
}

func (l *Logger) Warn(msg string, kv ...any) {
	fields(l.z.Warn(), kv).Msg(msg)
}

func (l *Logger) Error(msg string, kv ...any) {
	fields(l.z.Error(), kv).Msg(msg)
}
