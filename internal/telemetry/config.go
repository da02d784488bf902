// Package telemetry wires OpenTelemetry tracing and metrics for appdir.
// Metrics are exposed either through a Prometheus scrape handler or pushed
// to an OTLP collector; traces are always pushed over OTLP/HTTP.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "appdir"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the default trace sampling rate (5%)
	DefaultSampling = 0.05

	// ExporterPrometheus serves metrics on the API's /metrics route
	ExporterPrometheus = "prometheus"

	// ExporterOTLP pushes metrics to the configured OTLP endpoint
	ExporterOTLP = "otlp"
)

// Config represents the root telemetry configuration
type Config struct {
	// Enabled controls whether telemetry is enabled globally
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ServiceName defaults to "appdir"
	ServiceName string `yaml:"serviceName,omitempty" mapstructure:"serviceName"`

	// ServiceVersion defaults to the build version
	ServiceVersion string `yaml:"serviceVersion,omitempty" mapstructure:"serviceVersion"`

	// Endpoint is the OTLP collector endpoint ("host:port")
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`

	// Insecure allows HTTP connections to the collector
	Insecure bool `yaml:"insecure,omitempty" mapstructure:"insecure"`

	Tracing *TracingConfig `yaml:"tracing,omitempty" mapstructure:"tracing"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty" mapstructure:"metrics"`
}

// TracingConfig defines tracing-specific configuration
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Sampling is the trace sampling ratio (0.0 to 1.0). Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty" mapstructure:"sampling"`
}

// MetricsConfig defines metrics-specific configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Exporter is either "prometheus" (default) or "otlp"
	Exporter string `yaml:"exporter,omitempty" mapstructure:"exporter"`
}

// GetServiceName returns the service name, using default if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version, using "unknown" if not specified
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the endpoint, using default if not specified
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio, treating 0 as unset.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetExporter returns the metrics exporter name, defaulting to prometheus.
func (c *MetricsConfig) GetExporter() string {
	if c.Exporter == "" {
		return ExporterPrometheus
	}
	return c.Exporter
}

// Validate validates the telemetry configuration
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error

	if c.Tracing != nil {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Validate validates the tracing configuration
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate validates the metrics configuration
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	switch c.GetExporter() {
	case ExporterPrometheus, ExporterOTLP:
		return nil
	default:
		return fmt.Errorf("unknown exporter %q (want %q or %q)", c.Exporter, ExporterPrometheus, ExporterOTLP)
	}
}
