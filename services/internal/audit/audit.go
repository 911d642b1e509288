// Package audit records one structured entry per store call and per run.
package audit

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Entry describes one audited operation.
type Entry struct {
	Action   string
	RunID    string
	Params   map[string]any
	Records  int
	Duration time.Duration
	Err      error
}

// Logger writes audit entries through slog.
type Logger struct {
	log *slog.Logger
}

// New wraps l. A nil logger falls back to slog.Default.
func New(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l.With("component", "audit")}
}

// Log emits the entry at info level, or at error level when Err is set.
func (a *Logger) Log(ctx context.Context, e Entry) {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.Bool("success", e.Err == nil),
		slog.Int("records", e.Records),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}
	if len(e.Params) > 0 {
		params := make([]any, 0, len(e.Params)*2)
		for k, v := range e.Params {
			params = append(params, k, v)
		}
		attrs = append(attrs, slog.Group("params", params...))
	}

	level := slog.LevelInfo
	msg := "audit"
	if e.Err != nil {
		level = slog.LevelError
		msg = "audit_error"
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	a.log.LogAttrs(ctx, level, msg, attrs...)
}

// NewSlog builds the process logger. format is "json" or "text".
func NewSlog(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
