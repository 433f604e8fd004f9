package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordBuild(context.Context, string, time.Duration, int, int, error) {}

func (NoopMetrics) RecordCacheLookup(context.Context, bool) {}

func (NoopMetrics) RecordStoreOp(context.Context, string, error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

func (NoopSpanManager) StartCompileSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) StartStoreSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
