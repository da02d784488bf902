package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringlate/appdir/internal/api"
	"github.com/stringlate/appdir/internal/sources"
	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
	"github.com/stringlate/appdir/internal/versions"
)

// fixture is an index server plus a config file pointing at it
type fixture struct {
	dir        string
	configPath string
	cacheDir   string
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		cacheDir:   filepath.Join(dir, "index"),
	}

	cfg := fmt.Sprintf(`cacheDir: %s
index:
  url: %s/repo/index.jar
http:
  timeout: 10s
  maxRetries: 0
`, f.cacheDir, server.URL)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o600))
	return f
}

func archiveHandler(t *testing.T, entries ...sources.TestIndexEntry) http.Handler {
	t.Helper()

	data, err := sources.NewTestIndexArchive(sources.NewTestIndexXML(entries...))
	require.NoError(t, err)

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncThenList(t *testing.T) {
	f := newFixture(t, archiveHandler(t,
		sources.TestIndexEntry{ID: "org.example.reader", Name: "Reader", Source: "https://git.example.org/reader"},
		sources.TestIndexEntry{ID: "org.example.news", Name: "News"},
	))

	out, err := execute(t, "--config", f.configPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Downloading index.jar")
	assert.Contains(t, out, "Extracting index.xml")
	assert.Contains(t, out, "Loading index.xml")
	assert.Contains(t, out, "Done, 2 applications available")

	persisted, err := status.NewFileStatusPersistence(filepath.Join(f.dir, "status.yaml")).LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, persisted.Phase)
	assert.Equal(t, 2, persisted.ApplicationCount)
	assert.NotEmpty(t, persisted.LastSyncHash)
	assert.NotNil(t, persisted.LastSyncTime)

	out, err = execute(t, "--config", f.configPath, "list", "--format", "json", "--filter", "READ")
	require.NoError(t, err)

	var listed []api.ApplicationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "org.example.reader", listed[0].ID)
	assert.Equal(t, "https://git.example.org/reader", listed[0].SourceCodeURL)

	out, err = execute(t, "--config", f.configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "org.example.news")
}

func TestSync_IfDueSkipsFreshIndex(t *testing.T) {
	f := newFixture(t, archiveHandler(t, sources.TestIndexEntry{ID: "a", Name: "Alpha"}))

	_, err := execute(t, "--config", f.configPath, "sync")
	require.NoError(t, err)

	// No interval is configured, so an existing index is never due.
	out, err := execute(t, "--config", f.configPath, "sync", "--if-due")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
	assert.Contains(t, out, "1 applications available")
}

func TestSync_ResetDiscardsIndex(t *testing.T) {
	archive := archiveHandler(t, sources.TestIndexEntry{ID: "a", Name: "Alpha"})
	var requests atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			archive.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := execute(t, "--config", f.configPath, "sync")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(f.cacheDir, sources.IndexFileName))

	out, err := execute(t, "--config", f.configPath, "sync", "--reset")
	require.Error(t, err)
	assert.Contains(t, out, "Removed persisted index")
	assert.NoFileExists(t, filepath.Join(f.cacheDir, sources.IndexFileName))

	persisted, err := status.NewFileStatusPersistence(filepath.Join(f.dir, "status.yaml")).LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, persisted.Phase)
	assert.Equal(t, 1, persisted.AttemptCount)
	assert.Empty(t, persisted.LastSyncHash)
	assert.Nil(t, persisted.LastSyncTime)

	_, err = execute(t, "--config", f.configPath, "sync", "--reset", "--if-due")
	assert.Error(t, err)
}

func TestSync_CacheLockedKeepsStatus(t *testing.T) {
	f := newFixture(t, archiveHandler(t, sources.TestIndexEntry{ID: "a", Name: "Alpha"}))

	_, err := execute(t, "--config", f.configPath, "sync")
	require.NoError(t, err)

	lock := flock.New(pkgsync.DefaultLockPath(f.cacheDir))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = lock.Unlock() }()

	_, err = execute(t, "--config", f.configPath, "sync")
	require.ErrorIs(t, err, pkgsync.ErrCacheLocked)

	persisted, err := status.NewFileStatusPersistence(filepath.Join(f.dir, "status.yaml")).LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, persisted.Phase)
	assert.Zero(t, persisted.AttemptCount)
	assert.Equal(t, 1, persisted.ApplicationCount)
}

func TestSync_FailureIsPersisted(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := execute(t, "--config", f.configPath, "sync")
	require.Error(t, err)

	persisted, err := status.NewFileStatusPersistence(filepath.Join(f.dir, "status.yaml")).LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, persisted.Phase)
	assert.Equal(t, 1, persisted.AttemptCount)
	assert.NotEmpty(t, persisted.Message)

	_, err = os.Stat(filepath.Join(f.cacheDir, sources.IndexFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestList_WithoutIndex(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler())

	_, err := execute(t, "--config", f.configPath, "list")
	assert.ErrorIs(t, err, errNoIndex)
}

func TestList_CacheDirFlagOverridesConfig(t *testing.T) {
	f := newFixture(t, archiveHandler(t, sources.TestIndexEntry{ID: "a", Name: "Alpha"}))
	other := filepath.Join(t.TempDir(), "elsewhere")

	_, err := execute(t, "--config", f.configPath, "--cache-dir", other, "sync")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(other, sources.IndexFileName))
	require.NoError(t, err)

	_, err = execute(t, "--config", f.configPath, "list")
	assert.ErrorIs(t, err, errNoIndex)
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.Version, info.Version)
}

func TestValidateCommand(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler())

	out, err := execute(t, "--config", f.configPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid configuration")
	assert.Contains(t, out, "/repo/index.jar")
	assert.Contains(t, out, "Sync interval: disabled")
}

func TestValidateCommand_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  interval: 5s\n"), 0o600))

	_, err := execute(t, "--config", path, "validate")
	assert.Error(t, err)
}

func TestPrintApplications_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := printApplications(&bytes.Buffer{}, nil, "xml")
	assert.ErrorContains(t, err, "unsupported format")
}
