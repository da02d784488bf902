package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/index"
	"github.com/stringlate/appdir/internal/sources"
	"github.com/stringlate/appdir/internal/status"
	"github.com/stringlate/appdir/internal/telemetry"
	"github.com/stringlate/appdir/internal/tracing"
)

const (
	// LockFileSuffix is appended to the cache root to name the lock file held for the duration of a sync
	LockFileSuffix = ".lock"

	tracerName = "github.com/stringlate/appdir/sync"
)

// Stage titles reported through OnProgressUpdate
const (
	TitleDownloading = "Downloading index.jar"
	TitleExtracting  = "Extracting index.xml"
	TitleParsing     = "Loading index.xml"
)

// Result contains the result of a successful sync operation
type Result struct {
	ApplicationCount int
	Skipped          int
	Hash             string
	Duration         time.Duration
}

// Manager runs the index sync pipeline
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// Sync starts a sync on a new goroutine and returns immediately. ctx
	// governs the whole run, so it must outlive the caller's request.
	Sync(ctx context.Context, observer ProgressObserver) error

	// PerformSync runs a sync on the calling goroutine
	PerformSync(ctx context.Context, observer ProgressObserver) (*Result, *Error)

	// Phase reports the current pipeline state
	Phase() status.SyncPhase
}

// Option configures a Manager
type Option func(*defaultSyncManager)

// WithSyncMetrics sets the instruments recorded for every run
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultSyncManager) {
		m.syncMetrics = metrics
	}
}

// WithDirectoryMetrics sets the instruments updated when the directory is replaced
func WithDirectoryMetrics(metrics *telemetry.DirectoryMetrics) Option {
	return func(m *defaultSyncManager) {
		m.directoryMetrics = metrics
	}
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *defaultSyncManager) {
		m.tracer = tp.Tracer(tracerName)
	}
}

// DefaultLockPath returns the lock file for cacheRoot. It is a sibling of the
// cache root so the root itself only ever holds the index and transient files.
func DefaultLockPath(cacheRoot string) string {
	cacheRoot = filepath.Clean(cacheRoot)
	return filepath.Join(filepath.Dir(cacheRoot), filepath.Base(cacheRoot)+LockFileSuffix)
}

// WithLockPath overrides the cross-process lock location
func WithLockPath(path string) Option {
	return func(m *defaultSyncManager) {
		m.lock = flock.New(path)
	}
}

type defaultSyncManager struct {
	source    sources.RepositorySource
	storage   sources.StorageManager
	directory *apps.Directory

	syncMetrics      *telemetry.SyncMetrics
	directoryMetrics *telemetry.DirectoryMetrics
	tracer           trace.Tracer

	lock    *flock.Flock
	running atomic.Bool
	phase   atomic.Value
}

// NewManager creates a Manager that syncs source into storage and swaps
// directory on success.
func NewManager(
	source sources.RepositorySource,
	storage sources.StorageManager,
	directory *apps.Directory,
	opts ...Option,
) Manager {
	m := &defaultSyncManager{
		source:    source,
		storage:   storage,
		directory: directory,
		tracer:    otel.Tracer(tracerName),
		lock:      flock.New(DefaultLockPath(filepath.Dir(storage.IndexPath()))),
	}
	m.phase.Store(status.SyncPhaseIdle)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *defaultSyncManager) Phase() status.SyncPhase {
	return m.phase.Load().(status.SyncPhase)
}

func (m *defaultSyncManager) Sync(ctx context.Context, observer ProgressObserver) error {
	if err := m.acquire(); err != nil {
		return err
	}

	go func() {
		defer m.release()
		_, _ = m.run(ctx, observer)
	}()

	return nil
}

func (m *defaultSyncManager) PerformSync(ctx context.Context, observer ProgressObserver) (*Result, *Error) {
	if err := m.acquire(); err != nil {
		kind := KindBusy
		if !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrCacheLocked) {
			kind = KindPersistence
		}
		return nil, newError(kind, m.Phase(), "Sync rejected", err)
	}
	defer m.release()

	return m.run(ctx, observer)
}

// acquire takes the in-process guard first and then the file lock, so a
// second local caller never touches the lock file.
func (m *defaultSyncManager) acquire() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}

	if err := os.MkdirAll(filepath.Dir(m.lock.Path()), 0750); err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := m.lock.TryLock()
	if err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to lock cache directory: %w", err)
	}
	if !locked {
		m.running.Store(false)
		return ErrCacheLocked
	}

	return nil
}

func (m *defaultSyncManager) release() {
	if err := m.lock.Unlock(); err != nil {
		slog.Warn("Failed to release cache lock", "path", m.lock.Path(), "error", err)
	}
	m.running.Store(false)
}

func (m *defaultSyncManager) run(ctx context.Context, observer ProgressObserver) (*Result, *Error) {
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, span := tracing.StartSpan(ctx, m.tracer, telemetry.SyncSpanPrefix,
		trace.WithAttributes(tracing.AttrIndexURL.String(m.source.URL())))
	defer span.End()

	start := time.Now()
	slog.InfoContext(ctx, "Starting sync", "url", m.source.URL(), "cache", m.storage.IndexPath())

	result, syncErr := m.stages(ctx, observer)
	elapsed := time.Since(start)
	m.syncMetrics.RecordSyncDuration(ctx, elapsed, syncErr == nil)

	if syncErr != nil {
		m.phase.Store(status.SyncPhaseFailed)
		m.syncMetrics.RecordStageFailure(ctx, string(syncErr.Phase), string(syncErr.Kind))
		span.SetAttributes(
			tracing.AttrSyncPhase.String(string(syncErr.Phase)),
			tracing.AttrSyncErrorKind.String(string(syncErr.Kind)),
		)
		tracing.RecordError(span, syncErr, syncErr.Message)

		slog.ErrorContext(ctx, "Sync failed",
			"phase", syncErr.Phase,
			"kind", syncErr.Kind,
			"error", syncErr.Err,
			"duration", elapsed)
		observer.OnProgressFinished(syncErr.Error(), false)
		return nil, syncErr
	}

	result.Duration = elapsed
	m.phase.Store(status.SyncPhaseComplete)
	m.directoryMetrics.RecordApplications(ctx, result.ApplicationCount)
	span.SetAttributes(
		tracing.AttrApplicationCount.Int(result.ApplicationCount),
		tracing.AttrSkippedCount.Int(result.Skipped),
	)

	hashPreview := result.Hash
	if len(hashPreview) > 8 {
		hashPreview = hashPreview[:8]
	}
	slog.InfoContext(ctx, "Sync completed",
		"applications", result.ApplicationCount,
		"skipped", result.Skipped,
		"hash", hashPreview,
		"duration", elapsed)
	observer.OnProgressFinished(fmt.Sprintf("Done, %d applications available", result.ApplicationCount), true)

	return result, nil
}

func (m *defaultSyncManager) stages(ctx context.Context, observer ProgressObserver) (*Result, *Error) {
	// Staging never survives a run; the archive is removed explicitly on success
	defer func() {
		_ = m.source.Cleanup()
		if err := m.source.RemoveArchive(); err != nil {
			slog.DebugContext(ctx, "Archive cleanup failed", "error", err)
		}
	}()

	if err := m.enter(ctx, observer, status.SyncPhaseDownloading, TitleDownloading,
		"Downloading the application index from "+m.source.URL()); err != nil {
		return nil, err
	}
	if err := m.traced(ctx, telemetry.SyncSpanPrefix+".download", func(ctx context.Context) error {
		written, err := m.source.Download(ctx)
		trace.SpanFromContext(ctx).SetAttributes(tracing.AttrArchiveBytes.Int64(written))
		slog.DebugContext(ctx, "Downloaded index archive", "bytes", written)
		return err
	}); err != nil {
		return nil, m.fail(ctx, KindNetwork, "Failed to download the index", err)
	}

	if err := m.enter(ctx, observer, status.SyncPhaseExtracting, TitleExtracting,
		"Extracting the application index from the downloaded archive"); err != nil {
		return nil, err
	}
	var rawIndex string
	if err := m.traced(ctx, telemetry.SyncSpanPrefix+".extract", func(ctx context.Context) error {
		var err error
		rawIndex, err = m.source.Extract(ctx)
		return err
	}); err != nil {
		return nil, m.fail(ctx, KindExtraction, "Failed to extract the index", err)
	}
	if err := m.source.RemoveArchive(); err != nil {
		slog.WarnContext(ctx, "Failed to remove index archive", "error", err)
	}

	if err := m.enter(ctx, observer, status.SyncPhaseParsing, TitleParsing,
		"Parsing the application index and saving the reduced copy"); err != nil {
		return nil, err
	}

	var (
		entries []apps.Application
		stats   index.DecodeStats
	)
	if err := m.traced(ctx, telemetry.SyncSpanPrefix+".parse", func(context.Context) error {
		f, err := os.Open(rawIndex)
		if err != nil {
			return err
		}
		defer f.Close()
		entries, stats, err = index.DecodeWithStats(f)
		return err
	}); err != nil {
		return nil, m.fail(ctx, KindMalformedIndex, "Failed to parse the index", err)
	}
	if stats.Skipped > 0 {
		slog.WarnContext(ctx, "Skipped index entries without a name", "skipped", stats.Skipped)
	}

	if err := ctx.Err(); err != nil {
		return nil, m.fail(ctx, KindCanceled, "Sync canceled", err)
	}

	var hash string
	if err := m.traced(ctx, telemetry.SyncSpanPrefix+".store", func(ctx context.Context) error {
		var err error
		hash, err = m.storage.Store(ctx, slices.Values(entries))
		return err
	}); err != nil {
		return nil, m.fail(ctx, KindPersistence, "Failed to save the index", err)
	}

	m.directory.Replace(entries)

	return &Result{
		ApplicationCount: len(entries),
		Skipped:          stats.Skipped,
		Hash:             hash,
	}, nil
}

// enter moves the pipeline into phase, unless ctx is already done.
func (m *defaultSyncManager) enter(
	ctx context.Context, observer ProgressObserver, phase status.SyncPhase, title, description string,
) *Error {
	if err := ctx.Err(); err != nil {
		return newError(KindCanceled, phase, "Sync canceled", err)
	}
	m.phase.Store(phase)
	slog.DebugContext(ctx, "Sync stage", "phase", phase)
	observer.OnProgressUpdate(title, description)
	return nil
}

// fail builds the stage error, reporting cancellation in preference to the
// stage's own kind.
func (m *defaultSyncManager) fail(ctx context.Context, kind Kind, message string, err error) *Error {
	if ctx.Err() != nil {
		kind = KindCanceled
		message = "Sync canceled"
	}
	return newError(kind, m.Phase(), message, err)
}

func (m *defaultSyncManager) traced(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, m.tracer, name)
	defer span.End()

	err := fn(ctx)
	tracing.RecordError(span, err, "")
	return err
}
