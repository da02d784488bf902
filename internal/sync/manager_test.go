package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/mock/gomock"

	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/httpclient"
	"github.com/stringlate/appdir/internal/sources"
	"github.com/stringlate/appdir/internal/sources/mocks"
	"github.com/stringlate/appdir/internal/status"
)

type recordingObserver struct {
	titles   []string
	finished []bool
	messages []string
}

func (r *recordingObserver) OnProgressUpdate(title, _ string) {
	r.titles = append(r.titles, title)
}

func (r *recordingObserver) OnProgressFinished(description string, success bool) {
	r.finished = append(r.finished, success)
	r.messages = append(r.messages, description)
}

type harness struct {
	root      string
	storage   sources.StorageManager
	directory *apps.Directory
	manager   Manager
}

func newHarness(t *testing.T, handler http.Handler, opts ...Option) *harness {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := httpclient.NewDefaultClient(5*time.Second,
		httpclient.WithMaxRetries(0), httpclient.WithBaseDelay(time.Millisecond))
	t.Cleanup(client.Close)

	root := filepath.Join(t.TempDir(), "cache")
	storage := sources.NewFileStorageManager(root)
	source := sources.NewRepositorySource(server.URL+"/repo/index.jar", client, storage)
	directory := apps.NewDirectory(storage)

	return &harness{
		root:      root,
		storage:   storage,
		directory: directory,
		manager:   NewManager(source, storage, directory, opts...),
	}
}

// seed persists a previous index so failure tests can check it survives.
func (h *harness) seed(t *testing.T) []byte {
	t.Helper()

	previous := []apps.Application{apps.MustApplication("org.old", "Old App", "", "", "")}
	_, err := h.storage.Store(context.Background(), slices.Values(previous))
	require.NoError(t, err)

	loaded, err := h.directory.Load(context.Background())
	require.NoError(t, err)
	require.True(t, loaded)

	data, err := os.ReadFile(h.storage.IndexPath())
	require.NoError(t, err)
	return data
}

func serveBytes(status int, body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}

func mustArchive(t *testing.T, indexXML string) []byte {
	t.Helper()
	data, err := sources.NewTestIndexArchive(indexXML)
	require.NoError(t, err)
	return data
}

func names(entries []apps.Application) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestPerformSync_Success(t *testing.T) {
	t.Parallel()

	indexXML := sources.NewTestIndexXML(
		sources.TestIndexEntry{ID: "org.fdroid.fdroid", Name: "F-Droid", Source: "https://gitlab.com/fdroid/fdroidclient"},
		sources.TestIndexEntry{ID: "org.nameless", Name: ""},
		sources.TestIndexEntry{ID: "io.github.lonamiwebs.stringlate", Name: "Stringlate"},
	)
	h := newHarness(t, serveBytes(http.StatusOK, mustArchive(t, indexXML)))
	observer := &recordingObserver{}

	result, syncErr := h.manager.PerformSync(context.Background(), observer)
	require.Nil(t, syncErr)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.ApplicationCount)
	assert.Equal(t, 1, result.Skipped)
	assert.Positive(t, result.Duration)
	assert.Equal(t, status.SyncPhaseComplete, h.manager.Phase())

	assert.Equal(t, []string{TitleDownloading, TitleExtracting, TitleParsing}, observer.titles)
	assert.Equal(t, []bool{true}, observer.finished)

	assert.Equal(t, []string{"F-Droid", "Stringlate"}, names(h.directory.Applications(false, "")))

	persisted, err := os.ReadFile(h.storage.IndexPath())
	require.NoError(t, err)
	sum := sha256.Sum256(persisted)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.Hash)
	assert.NotContains(t, string(persisted), "<license>")

	assert.NoFileExists(t, h.storage.ArchivePath())
	assert.NoDirExists(t, h.storage.StagingDir())

	// the lock lives beside the cache root, never inside it
	entries, err := os.ReadDir(h.root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sources.IndexFileName, entries[0].Name())
	assert.FileExists(t, DefaultLockPath(h.root))

	// the persisted index reloads to the same directory
	reloaded := apps.NewDirectory(h.storage)
	ok, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, names(h.directory.Applications(false, "")), names(reloaded.Applications(false, "")))
}

// spanRecorder remembers, per log message, whether the record was logged inside a span
type spanRecorder struct {
	mu     gosync.Mutex
	traced map[string]bool
}

func (r *spanRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *spanRecorder) Handle(ctx context.Context, record slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traced[record.Message] = trace.SpanContextFromContext(ctx).IsValid()
	return nil
}

func (r *spanRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *spanRecorder) WithGroup(string) slog.Handler      { return r }

// Not parallel: replaces the default logger.
func TestPerformSync_LogsCarrySpanContext(t *testing.T) {
	recorder := &spanRecorder{traced: map[string]bool{}}
	previous := slog.Default()
	slog.SetDefault(slog.New(recorder))
	t.Cleanup(func() { slog.SetDefault(previous) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	archive := mustArchive(t, sources.NewTestIndexXML(sources.TestIndexEntry{ID: "a", Name: "Alpha"}))
	h := newHarness(t, serveBytes(http.StatusOK, archive), WithTracerProvider(tp))

	_, syncErr := h.manager.PerformSync(context.Background(), nil)
	require.Nil(t, syncErr)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for _, msg := range []string{"Starting sync", "Sync stage", "Sync completed"} {
		traced, logged := recorder.traced[msg]
		require.True(t, logged, msg)
		assert.True(t, traced, "%q should be logged with the sync span", msg)
	}
}

func TestPerformSync_FailureLeavesIndexUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    func(t *testing.T) http.Handler
		wantKind   Kind
		wantPhase  status.SyncPhase
		wantTitles int
	}{
		{
			name: "download not found",
			handler: func(*testing.T) http.Handler {
				return serveBytes(http.StatusNotFound, []byte("gone"))
			},
			wantKind:   KindNetwork,
			wantPhase:  status.SyncPhaseDownloading,
			wantTitles: 1,
		},
		{
			name: "archive is not a zip",
			handler: func(*testing.T) http.Handler {
				return serveBytes(http.StatusOK, []byte("definitely not a jar"))
			},
			wantKind:   KindExtraction,
			wantPhase:  status.SyncPhaseExtracting,
			wantTitles: 2,
		},
		{
			name: "archive without index",
			handler: func(t *testing.T) http.Handler {
				return serveBytes(http.StatusOK, mustArchive(t, ""))
			},
			wantKind:   KindExtraction,
			wantPhase:  status.SyncPhaseExtracting,
			wantTitles: 2,
		},
		{
			name: "index with wrong root",
			handler: func(t *testing.T) http.Handler {
				return serveBytes(http.StatusOK, mustArchive(t, "<html><body/></html>"))
			},
			wantKind:   KindMalformedIndex,
			wantPhase:  status.SyncPhaseParsing,
			wantTitles: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tt.handler(t))
			before := h.seed(t)
			observer := &recordingObserver{}

			result, syncErr := h.manager.PerformSync(context.Background(), observer)
			require.Nil(t, result)
			require.NotNil(t, syncErr)

			assert.Equal(t, tt.wantKind, syncErr.Kind)
			assert.Equal(t, tt.wantPhase, syncErr.Phase)
			assert.Equal(t, status.SyncPhaseFailed, h.manager.Phase())
			assert.Len(t, observer.titles, tt.wantTitles)
			assert.Equal(t, []bool{false}, observer.finished)

			after, err := os.ReadFile(h.storage.IndexPath())
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, []string{"Old App"}, names(h.directory.Applications(false, "")))
			assert.NoDirExists(t, h.storage.StagingDir())
		})
	}
}

func TestPerformSync_CanceledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, serveBytes(http.StatusOK, mustArchive(t, sources.NewTestIndexXML())))
	before := h.seed(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	observer := &recordingObserver{}
	_, syncErr := h.manager.PerformSync(ctx, observer)
	require.NotNil(t, syncErr)
	assert.Equal(t, KindCanceled, syncErr.Kind)
	assert.ErrorIs(t, syncErr, context.Canceled)
	assert.Empty(t, observer.titles)
	assert.Equal(t, []bool{false}, observer.finished)

	after, err := os.ReadFile(h.storage.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSync_ReportsThroughChannel(t *testing.T) {
	t.Parallel()

	indexXML := sources.NewTestIndexXML(sources.TestIndexEntry{ID: "a", Name: "Alpha"})
	h := newHarness(t, serveBytes(http.StatusOK, mustArchive(t, indexXML)))

	observer := NewChannelObserver(8)
	require.NoError(t, h.manager.Sync(context.Background(), observer))

	var events []Event
	for ev := range observer.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	last := events[len(events)-1]
	assert.True(t, last.Finished)
	assert.True(t, last.Success)
	assert.Equal(t, 1, h.directory.Len())

	// the guard is released shortly after the finish event has been sent
	require.Eventually(t, func() bool {
		_, syncErr := h.manager.PerformSync(context.Background(), nil)
		return syncErr == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_RejectsWhileRunning(t *testing.T) {
	t.Parallel()

	archive := mustArchive(t, sources.NewTestIndexXML(sources.TestIndexEntry{ID: "a", Name: "Alpha"}))
	release := make(chan struct{})
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write(archive)
	}))

	observer := NewChannelObserver(8)
	require.NoError(t, h.manager.Sync(context.Background(), observer))

	assert.ErrorIs(t, h.manager.Sync(context.Background(), nil), ErrSyncInProgress)

	_, syncErr := h.manager.PerformSync(context.Background(), nil)
	require.NotNil(t, syncErr)
	assert.Equal(t, KindBusy, syncErr.Kind)
	assert.ErrorIs(t, syncErr, ErrSyncInProgress)

	close(release)
	for range observer.Events() {
	}
}

func TestSync_CacheLockedByAnotherProcess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, serveBytes(http.StatusOK, nil))

	lock := flock.New(DefaultLockPath(h.root))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = lock.Unlock() }()

	assert.ErrorIs(t, h.manager.Sync(context.Background(), nil), ErrCacheLocked)
	assert.Equal(t, status.SyncPhaseIdle, h.manager.Phase())
}

func TestSync_WithLockPath(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "locks", "appdir.lock")
	lock := flock.New(lockPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0750))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = lock.Unlock() }()

	root := filepath.Join(t.TempDir(), "cache")
	storage := sources.NewFileStorageManager(root)
	client := httpclient.NewDefaultClient(time.Second, httpclient.WithMaxRetries(0))
	t.Cleanup(client.Close)
	source := sources.NewRepositorySource("https://repo.example.org/index.jar", client, storage)
	manager := NewManager(source, storage, apps.NewDirectory(storage), WithLockPath(lockPath))

	_, syncErr := manager.PerformSync(context.Background(), nil)
	require.NotNil(t, syncErr)
	assert.Equal(t, KindBusy, syncErr.Kind)
	assert.ErrorIs(t, syncErr, ErrCacheLocked)
}

func TestDefaultLockPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/var", "cache", "appdir", "index.lock"),
		DefaultLockPath(filepath.Join("/var", "cache", "appdir", "index")+"/"))
}

func TestPerformSync_WithMocks(t *testing.T) {
	t.Parallel()

	writeRawIndex := func(t *testing.T) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), sources.IndexFileName)
		xml := sources.NewTestIndexXML(sources.TestIndexEntry{ID: "new", Name: "New App"})
		require.NoError(t, os.WriteFile(path, []byte(xml), 0600))
		return path
	}

	t.Run("persistence failure keeps directory", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		source := mocks.NewMockRepositorySource(ctrl)
		storage := mocks.NewMockStorageManager(ctrl)

		storage.EXPECT().IndexPath().Return(filepath.Join(t.TempDir(), sources.IndexFileName)).AnyTimes()
		source.EXPECT().URL().Return("https://repo.example.org/index.jar").AnyTimes()
		source.EXPECT().Download(gomock.Any()).Return(int64(42), nil)
		source.EXPECT().Extract(gomock.Any()).Return(writeRawIndex(t), nil)
		source.EXPECT().RemoveArchive().Return(nil).AnyTimes()
		source.EXPECT().Cleanup().Return(nil)
		storage.EXPECT().Store(gomock.Any(), gomock.Any()).Return("", errors.New("disk full"))

		directory := apps.NewDirectory(storage)
		directory.Replace([]apps.Application{apps.MustApplication("old", "Old App", "", "", "")})

		_, syncErr := NewManager(source, storage, directory).PerformSync(context.Background(), nil)
		require.NotNil(t, syncErr)
		assert.Equal(t, KindPersistence, syncErr.Kind)
		assert.Contains(t, syncErr.Error(), "disk full")
		assert.Equal(t, []string{"Old App"}, names(directory.Applications(false, "")))
	})

	t.Run("archive removal failure is not fatal", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		source := mocks.NewMockRepositorySource(ctrl)
		storage := mocks.NewMockStorageManager(ctrl)

		storage.EXPECT().IndexPath().Return(filepath.Join(t.TempDir(), sources.IndexFileName)).AnyTimes()
		source.EXPECT().URL().Return("https://repo.example.org/index.jar").AnyTimes()
		source.EXPECT().Download(gomock.Any()).Return(int64(42), nil)
		source.EXPECT().Extract(gomock.Any()).Return(writeRawIndex(t), nil)
		source.EXPECT().RemoveArchive().Return(errors.New("read-only file system")).AnyTimes()
		source.EXPECT().Cleanup().Return(nil)
		storage.EXPECT().Store(gomock.Any(), gomock.Any()).Return("cafebabe", nil)

		directory := apps.NewDirectory(storage)

		result, syncErr := NewManager(source, storage, directory).PerformSync(context.Background(), nil)
		require.Nil(t, syncErr)
		assert.Equal(t, "cafebabe", result.Hash)
		assert.Equal(t, []string{"New App"}, names(directory.Applications(true, "")))
	})
}
