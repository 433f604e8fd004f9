package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
type SpanManager interface {
	// StartCompileSpan starts the span covering one compile request.
	StartCompileSpan(ctx context.Context, workflow, hash string) (context.Context, trace.Span)

	// StartStoreSpan starts a child span for a plan store operation.
	StartStoreSpan(ctx context.Context, op, planID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err when non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager backed by tp, or by the global
// tracer provider when tp is nil.
func NewSpanManager(tp trace.TracerProvider) SpanManager {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: tp.Tracer(instrumentationName)}
}

func (m *otelSpanManager) StartCompileSpan(ctx context.Context, workflow, hash string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "flowplan.compile",
		trace.WithAttributes(
			attribute.String("workflow.name", workflow),
			attribute.String("workflow.hash", hash),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartStoreSpan(ctx context.Context, op, planID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "flowplan.store."+op,
		trace.WithAttributes(attribute.String("plan.id", planID)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
