// Package logger provides the process-wide structured logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

type ctxKey struct{}

// L is the global logger. Init replaces it; services derive scoped loggers with L.With.
var L = slog.Default()

// Init configures the global logger. format is "json" or "text".
func Init(level, format string) {
	L = New(os.Stdout, level, format)
	slog.SetDefault(L)
	L.Info("logger initialized", slog.String("level", parseLevel(level).String()))
}

// New builds a logger writing to w without touching the global one.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// FromContext returns the request-scoped logger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func Info(msg string, fields map[string]any) {
	L.Info(msg, attrs(fields)...)
}

func Warn(msg string, fields map[string]any) {
	L.Warn(msg, attrs(fields)...)
}

func Error(msg string, fields map[string]any) {
	L.Error(msg, attrs(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	L.Error(msg, attrs(fields)...)
	os.Exit(1)
}

// attrs flattens fields in key order so output is stable.
func attrs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
