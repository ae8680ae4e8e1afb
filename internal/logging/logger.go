package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	attrService   = "service"
	attrComponent = "component"
	attrRunID     = "run_id"
)

type runIDKey struct{}

// WithRunID returns a context whose log records carry run_id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run ID stored by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// RunHandler is an [slog.Handler] that injects the run_id from the record's
// context into every log record emitted with a *Context logging call.
type RunHandler struct {
	inner slog.Handler
}

// NewRunHandler wraps an [slog.Handler], pre-attaching the service attribute.
func NewRunHandler(inner slog.Handler, service string) *RunHandler {
	return &RunHandler{inner: inner.WithAttrs([]slog.Attr{slog.String(attrService, service)})}
}

// Enabled delegates to the inner handler.
func (h *RunHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds run_id when present, then delegates.
func (h *RunHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		if id := RunIDFrom(ctx); id != "" {
			record.AddAttrs(slog.String(attrRunID, id))
		}
	}
	if err := h.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("run handler: %w", err)
	}
	return nil
}

// WithAttrs returns a new RunHandler with additional attributes on the inner handler.
func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new RunHandler with a group prefix on the inner handler.
func (h *RunHandler) WithGroup(name string) slog.Handler {
	return &RunHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger writing to w in text or json format.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewRunHandler(inner, "clawtographer"))
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that pass a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Component returns l tagged with the subsystem name, or a discarding logger when l is nil.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With(slog.String(attrComponent, name))
}
