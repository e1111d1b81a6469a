// Package otel initializes the OpenTelemetry providers behind the
// optional telemetry surface: link spans over OTLP/HTTP and pipeline
// metrics over OTLP/gRPC.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "uwbmon"

	exportInterval = 15 * time.Second
	connectTimeout = 10 * time.Second
)

// Providers bundles the tracer and meter providers behind one
// lifecycle. A nil *Providers is valid: Tracer and Meter fall back to
// the global (no-op by default) providers and Shutdown does nothing,
// which is how the rest of the program runs with telemetry off.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init builds both providers against the configured OTLP endpoints.
// The HTTP client honors HTTP_PROXY, HTTPS_PROXY and NO_PROXY through
// Go's standard net/http transport.
func Init(ctx context.Context, cfg *config.OTel, logger *zap.Logger) (*Providers, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.GetTracesEndpoint()),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(connectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.GetMetricsEndpoint()),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	p := &Providers{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(exportInterval),
			)),
		),
	}

	logger.Info("telemetry enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("traces_endpoint", cfg.GetTracesEndpoint()),
		zap.String("metrics_endpoint", cfg.GetMetricsEndpoint()),
	)
	return p, nil
}

func buildResource(ctx context.Context, cfg *config.OTel) (*resource.Resource, error) {
	opts := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if custom := cfg.ParseResourceAttributes(); len(custom) > 0 {
		opts = append(opts, resource.WithAttributes(custom...))
	}
	return resource.New(ctx, opts...)
}

// Tracer returns the tracer used for link span emission.
func (p *Providers) Tracer() trace.Tracer {
	if p == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tp.Tracer(instrumentationName)
}

// Meter returns the meter the pipeline instruments register on.
func (p *Providers) Meter() metric.Meter {
	if p == nil {
		return otel.Meter(instrumentationName)
	}
	return p.mp.Meter(instrumentationName)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}
