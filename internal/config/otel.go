package config

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// OTel configures telemetry export. The endpoint variables follow the
// standard OTEL_* names so existing collector setups work unchanged; only
// the master switch is UWBMON-specific.
type OTel struct {
	Enabled            bool   `env:"UWBMON_OTEL" envDefault:"false" json:"enabled"`
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"uwbmon" json:"service_name"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"" json:"resource_attributes"`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"" json:"exporter_endpoint"`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" envDefault:"" json:"traces_endpoint"`
	MetricsEndpoint    string `env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT" envDefault:"" json:"metrics_endpoint"`
}

// GetTracesEndpoint returns the endpoint for the HTTP trace exporter.
// Priority: signal-specific > generic > default.
func (o *OTel) GetTracesEndpoint() string {
	if o.TracesEndpoint != "" {
		return o.TracesEndpoint
	}
	if o.ExporterEndpoint != "" {
		return o.ExporterEndpoint
	}
	return "localhost:4318"
}

// GetMetricsEndpoint returns the endpoint for the gRPC metric exporter.
// Priority: signal-specific > generic > default.
func (o *OTel) GetMetricsEndpoint() string {
	if o.MetricsEndpoint != "" {
		return o.MetricsEndpoint
	}
	if o.ExporterEndpoint != "" {
		return o.ExporterEndpoint
	}
	return "localhost:4317"
}

// ParseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES.
// Format: key1=value1,key2=value2
func (o *OTel) ParseResourceAttributes() []attribute.KeyValue {
	if o.ResourceAttributes == "" {
		return nil
	}

	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(o.ResourceAttributes, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			key := strings.TrimSpace(kv[0])
			value := strings.TrimSpace(kv[1])
			if key != "" {
				attrs = append(attrs, attribute.String(key, value))
			}
		}
	}
	return attrs
}
