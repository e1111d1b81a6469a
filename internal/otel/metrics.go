package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline instruments. Every record method is safe
// on a nil receiver so callers never branch on whether telemetry is
// configured.
type Metrics struct {
	eventsIngested metric.Int64Counter
	eventsDropped  metric.Int64Counter
	linksClosed    metric.Int64Counter
	rangeFallbacks metric.Int64Counter
	linkLatency    metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.eventsIngested, err = meter.Int64Counter("uwbmon.events.ingested",
		metric.WithDescription("Events accepted off the wire"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsDropped, err = meter.Int64Counter("uwbmon.events.dropped",
		metric.WithDescription("Events discarded before processing"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.linksClosed, err = meter.Int64Counter("uwbmon.links.closed",
		metric.WithDescription("TX/RX pairs closed into links"),
		metric.WithUnit("{link}"),
	)
	if err != nil {
		return nil, err
	}

	m.rangeFallbacks, err = meter.Int64Counter("uwbmon.range.fallbacks",
		metric.WithDescription("RANGE results not covered by a recent link"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.linkLatency, err = meter.Float64Histogram("uwbmon.link.latency",
		metric.WithDescription("Host-side TX to RX latency of closed links"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordIngested counts one event accepted into the pipeline.
func (m *Metrics) RecordIngested(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.eventsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("uwb.role", role)))
}

// RecordDropped counts one discarded event with the drop reason.
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordLink counts a closed link and its latency.
func (m *Metrics) RecordLink(ctx context.Context, latency time.Duration) {
	if m == nil {
		return
	}
	m.linksClosed.Add(ctx, 1)
	m.linkLatency.Record(ctx, float64(latency.Microseconds())/1000.0)
}

// RecordFallback counts a RANGE result that had to stand in for a link.
func (m *Metrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.rangeFallbacks.Add(ctx, 1)
}
