package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the meter name for sync pipeline instruments
	SyncMetricsMeterName = "github.com/stringlate/appdir/sync"

	// DirectoryMetricsMeterName is the meter name for directory instruments
	DirectoryMetricsMeterName = "github.com/stringlate/appdir/apps"
)

// SyncMetrics holds the instruments recorded by the sync pipeline.
type SyncMetrics struct {
	syncDuration  metric.Float64Histogram
	syncsTotal    metric.Int64Counter
	stageFailures metric.Int64Counter
}

// NewSyncMetrics creates sync instruments. A nil provider yields nil metrics,
// and every recording method is a no-op on a nil receiver.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"appdir_sync_duration_seconds",
		metric.WithDescription("Duration of index sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	syncsTotal, err := meter.Int64Counter(
		"appdir_syncs_total",
		metric.WithDescription("Number of completed sync operations"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	stageFailures, err := meter.Int64Counter(
		"appdir_sync_stage_failures_total",
		metric.WithDescription("Number of sync failures by pipeline stage"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:  syncDuration,
		syncsTotal:    syncsTotal,
		stageFailures: stageFailures,
	}, nil
}

// RecordSyncDuration records the duration and outcome of one sync.
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
	m.syncsTotal.Add(ctx, 1, attrs)
}

// RecordStageFailure counts a failure in the named stage.
func (m *SyncMetrics) RecordStageFailure(ctx context.Context, stage, kind string) {
	if m == nil {
		return
	}

	m.stageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// DirectoryMetrics holds instruments describing the in-memory directory.
type DirectoryMetrics struct {
	applications metric.Int64Gauge
	queries      metric.Int64Counter
}

// NewDirectoryMetrics creates directory instruments. A nil provider yields nil.
func NewDirectoryMetrics(provider metric.MeterProvider) (*DirectoryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DirectoryMetricsMeterName)

	applications, err := meter.Int64Gauge(
		"appdir_applications",
		metric.WithDescription("Number of applications in the loaded directory"),
		metric.WithUnit("{application}"),
	)
	if err != nil {
		return nil, err
	}

	queries, err := meter.Int64Counter(
		"appdir_directory_queries_total",
		metric.WithDescription("Number of directory queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	return &DirectoryMetrics{applications: applications, queries: queries}, nil
}

// RecordApplications records the current directory size.
func (m *DirectoryMetrics) RecordApplications(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.applications.Record(ctx, int64(count))
}

// RecordQuery counts a directory query, noting whether a filter was used.
func (m *DirectoryMetrics) RecordQuery(ctx context.Context, filtered, limited bool) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("filtered", filtered),
		attribute.Bool("limited", limited),
	))
}
