package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SyncSpanPrefix is the name prefix of the spans started by the sync pipeline.
// Root spans with this prefix are always sampled.
const SyncSpanPrefix = "sync"

// TracerProviderOption configures NewTracerProvider
type TracerProviderOption func(*tracerProviderConfig)

type tracerProviderConfig struct {
	resource      *resource.Resource
	tracingConfig *TracingConfig
	endpoint      string
	insecure      bool
	exporter      sdktrace.SpanExporter
}

// WithTracerResource sets the resource describing this process
func WithTracerResource(res *resource.Resource) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.resource = res
	}
}

// WithTracingConfig sets the tracing configuration
func WithTracingConfig(tc *TracingConfig) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.tracingConfig = tc
	}
}

// WithTracerEndpoint sets the OTLP/HTTP collector endpoint
func WithTracerEndpoint(endpoint string, insecure bool) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.endpoint = endpoint
		cfg.insecure = insecure
	}
}

// WithSpanExporter replaces the OTLP exporter, e.g. with an in-memory one
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.exporter = exporter
	}
}

// NewTracerProvider creates a batching TracerProvider and installs it
// globally together with the W3C propagators. Tracing disabled yields a
// no-op provider.
//
// HTTP request spans are sampled at the configured ratio. Sync runs are rare
// and each one matters, so their spans are always recorded.
func NewTracerProvider(ctx context.Context, opts ...TracerProviderOption) (trace.TracerProvider, error) {
	cfg := &tracerProviderConfig{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.tracingConfig == nil || !cfg.tracingConfig.Enabled {
		slog.DebugContext(ctx, "Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	res := cfg.resource
	if res == nil {
		var err error
		if res, err = NewResource(ctx, DefaultServiceName, "unknown"); err != nil {
			return nil, err
		}
	}

	exporter := cfg.exporter
	if exporter == nil {
		var err error
		if exporter, err = createOTLPTracingExporter(ctx, cfg.endpoint, cfg.insecure); err != nil {
			return nil, fmt.Errorf("failed to create OTLP tracing exporter: %w", err)
		}
		if cfg.insecure {
			slog.WarnContext(ctx, "Tracing exporter uses plain HTTP", "endpoint", cfg.endpoint)
		}
	}

	ratio := cfg.tracingConfig.GetSampling()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(NewSyncSampler(ratio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.InfoContext(ctx, "Tracing initialized", "endpoint", cfg.endpoint, "sampling_ratio", ratio)
	return tp, nil
}

// NewSyncSampler samples every root span of the sync pipeline and applies
// ratio to every other root span. Child spans follow their parent.
func NewSyncSampler(ratio float64) sdktrace.Sampler {
	return sdktrace.ParentBased(syncSampler{requests: sdktrace.TraceIDRatioBased(ratio)})
}

type syncSampler struct {
	requests sdktrace.Sampler
}

func (s syncSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if strings.HasPrefix(p.Name, SyncSpanPrefix) {
		return sdktrace.AlwaysSample().ShouldSample(p)
	}
	return s.requests.ShouldSample(p)
}

func (s syncSampler) Description() string {
	return fmt.Sprintf("SyncAlwaysOn{requests:%s}", s.requests.Description())
}

func createOTLPTracingExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}
