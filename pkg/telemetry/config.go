// Package telemetry builds the OpenTelemetry meter and tracer providers for
// the server: a Prometheus scrape endpoint and optional OTLP export.
package telemetry

import (
	"fmt"

	"github.com/stacklok/envector-mcp/pkg/validation"
	"github.com/stacklok/envector-mcp/pkg/versions"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// Enabled exposes metrics on a Prometheus /metrics handler.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ServiceName is the service name for telemetry
	ServiceName string `json:"serviceName" yaml:"service_name"`

	// ServiceVersion is the service version for telemetry
	ServiceVersion string `json:"serviceVersion" yaml:"service_version"`

	// IncludeRuntimeMetrics adds Go runtime and process collectors to /metrics.
	IncludeRuntimeMetrics bool `json:"includeRuntimeMetrics" yaml:"include_runtime_metrics"`

	// Endpoint is an OTLP/HTTP collector (host:port). When set, traces and
	// metrics are pushed there in addition to /metrics.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `json:"headers" yaml:"headers"`

	// Insecure uses HTTP instead of HTTPS for the OTLP endpoint
	Insecure bool `json:"insecure" yaml:"insecure"`

	// SamplingRate is the trace sampling ratio (0.0-1.0).
	SamplingRate float64 `json:"samplingRate" yaml:"sampling_rate"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "envector-mcp",
		ServiceVersion: versions.GetVersionInfo().Version,
		SamplingRate:   0.05,
		Headers:        map[string]string{},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %g", c.SamplingRate)
	}
	if c.Endpoint == "" && len(c.Headers) > 0 {
		return fmt.Errorf("OTLP headers are configured but no endpoint is set")
	}
	for name, value := range c.Headers {
		if err := validation.ValidateHTTPHeaderName(name); err != nil {
			return fmt.Errorf("OTLP header %q: %w", name, err)
		}
		if err := validation.ValidateHTTPHeaderValue(value); err != nil {
			return fmt.Errorf("OTLP header %q: %w", name, err)
		}
	}
	return nil
}
