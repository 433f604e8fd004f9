package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowKey ctxKey = iota
	planIDKey
	requestIDKey
)

// correlationAttrs lists the context keys copied onto log records, in output order.
var correlationAttrs = []struct {
	key  ctxKey
	attr string
}{
	{workflowKey, "workflow"},
	{planIDKey, "plan_id"},
	{requestIDKey, "request_id"},
}

// WithWorkflow returns a context carrying the workflow name being compiled.
func WithWorkflow(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowKey, name)
}

// WithPlanID returns a context carrying the execution plan ID.
func WithPlanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, planIDKey, id)
}

// WithRequestID returns a context carrying the ID of the CLI or MCP request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Workflow returns the workflow name from ctx, or "".
func Workflow(ctx context.Context) string {
	return stringValue(ctx, workflowKey)
}

// PlanID returns the plan ID from ctx, or "".
func PlanID(ctx context.Context) string {
	return stringValue(ctx, planIDKey)
}

// RequestID returns the request ID from ctx, or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// LogWith returns logger enriched with the non-empty correlation values of ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, c := range correlationAttrs {
		if v := stringValue(ctx, c.key); v != "" {
			logger = logger.With(slog.String(c.attr, v))
		}
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the correlation values
// found in the record's context, so logger.InfoContext(ctx, ...) carries
// them without an explicit LogWith.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, c := range correlationAttrs {
		if v := stringValue(ctx, c.key); v != "" {
			r.AddAttrs(slog.String(c.attr, v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds a correlation-aware logger writing text or json to w.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}
