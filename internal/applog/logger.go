// Package applog provides the structured logger used throughout the
// control plane. It wraps zerolog behind a small stable API (New,
// WithFields, Info/Debug/Warn/Error) plus correlation-ID propagation,
// so call sites never import zerolog directly.
package applog

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
}

// Logger is the application-wide structured logger handle.
type Logger struct {
	z zerolog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	if opts.HumanReadable {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	z := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &Logger{z: z}, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, nil
	}
}

// WithFields returns a derived logger that always writes the supplied
// fields, with stable key ordering so JSON output is deterministic.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return l
	}
	if len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ctx := l.z.With()
	for _, key := range keys {
		ctx = ctx.Interface(key, fields[key])
	}

	return &Logger{z: ctx.Logger()}
}

// With is a variadic convenience wrapper around WithFields for call
// sites that prefer the key-value convention over a map literal.
func (l *Logger) With(kv ...any) *Logger {
	if l == nil || len(kv) == 0 {
		return l
	}
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return l.WithFields(fields)
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string) {
	if l == nil {
		return
	}
	l.z.Info().Msg(strings.TrimSpace(msg))
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil {
		return
	}
	l.z.Debug().Msg(strings.TrimSpace(msg))
}

// Warn writes a warning-level log entry.
func (l *Logger) Warn(msg string) {
	if l == nil {
		return
	}
	l.z.Warn().Msg(strings.TrimSpace(msg))
}

// Error writes an error log entry including the supplied error context.
// This is the single ERROR-level line emitted at the boundary of the
// core; callers must not also log at the HTTP layer.
func (l *Logger) Error(err error, msg string) {
	if l == nil {
		return
	}
	evt := l.z.Error()
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg(strings.TrimSpace(msg))
}

type correlationIDKey struct{}

// WithCorrelationID stores the provided correlation identifier in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID retrieves the correlation identifier from the context,
// returning an empty string when none is present.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
