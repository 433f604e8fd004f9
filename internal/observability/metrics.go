// Package observability records compile metrics and trace spans through
// OpenTelemetry. Both concerns have no-op implementations for when
// telemetry is off.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rendis/flowplan"

// MetricsRecorder records flowplan metrics.
type MetricsRecorder interface {
	// RecordBuild records one plan build with its outcome and size.
	RecordBuild(ctx context.Context, workflow string, duration time.Duration, nodes, warnings int, err error)

	// RecordCacheLookup records a compiled-plan cache lookup.
	RecordCacheLookup(ctx context.Context, hit bool)

	// RecordStoreOp records a plan store operation such as save or get.
	RecordStoreOp(ctx context.Context, op string, err error)
}

type otelMetrics struct {
	builds       metric.Int64Counter
	buildErrors  metric.Int64Counter
	buildLatency metric.Float64Histogram
	planNodes    metric.Int64Histogram
	warnings     metric.Int64Counter
	cacheLookups metric.Int64Counter
	storeOps     metric.Int64Counter
}

// NewMetricsRecorder creates OpenTelemetry instruments on mp, or on the
// global meter provider when mp is nil.
func NewMetricsRecorder(mp metric.MeterProvider) (MetricsRecorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &otelMetrics{}
	var err error
	if m.builds, err = meter.Int64Counter("flowplan.builds",
		metric.WithDescription("Number of plan builds")); err != nil {
		return nil, err
	}
	if m.buildErrors, err = meter.Int64Counter("flowplan.build.errors",
		metric.WithDescription("Number of plan builds that failed")); err != nil {
		return nil, err
	}
	if m.buildLatency, err = meter.Float64Histogram("flowplan.build.latency_ms",
		metric.WithDescription("Plan build latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.planNodes, err = meter.Int64Histogram("flowplan.plan.nodes",
		metric.WithDescription("Executable nodes per built plan")); err != nil {
		return nil, err
	}
	if m.warnings, err = meter.Int64Counter("flowplan.plan.warnings",
		metric.WithDescription("Warnings attached to built plans")); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter("flowplan.cache.lookups",
		metric.WithDescription("Compiled plan cache lookups")); err != nil {
		return nil, err
	}
	if m.storeOps, err = meter.Int64Counter("flowplan.store.operations",
		metric.WithDescription("Plan store operations")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *otelMetrics) RecordBuild(ctx context.Context, workflow string, duration time.Duration, nodes, warnings int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.Bool("success", err == nil),
	)
	m.builds.Add(ctx, 1, attrs)
	m.buildLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.buildErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
		return
	}
	m.planNodes.Record(ctx, int64(nodes), attrs)
	if warnings > 0 {
		m.warnings.Add(ctx, int64(warnings), attrs)
	}
}

func (m *otelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func (m *otelMetrics) RecordStoreOp(ctx context.Context, op string, err error) {
	m.storeOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", err == nil),
	))
}
