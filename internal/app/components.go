package app

import (
	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/config"
	"github.com/stringlate/appdir/internal/httpclient"
	"github.com/stringlate/appdir/internal/sources"
	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
	"github.com/stringlate/appdir/internal/sync/coordinator"
	"github.com/stringlate/appdir/internal/telemetry"
	"github.com/stringlate/appdir/internal/versions"
)

// SyncComponents is the object graph behind a sync: the HTTP client, the
// cache, the in-memory directory and the manager that ties them together.
type SyncComponents struct {
	Storage     sources.StorageManager
	Directory   *apps.Directory
	Manager     pkgsync.Manager
	Persistence status.StatusPersistence
	// Breaker wraps the HTTP client and reports per-host breaker states
	Breaker *httpclient.CircuitBreakerClient

	client *httpclient.DefaultClient
}

// NewSyncComponents builds the sync object graph from cfg
func NewSyncComponents(cfg *config.Config, opts ...pkgsync.Option) *SyncComponents {
	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = versions.UserAgent()
	}

	client := httpclient.NewDefaultClient(cfg.GetHTTPTimeout(),
		httpclient.WithMaxRetries(cfg.GetMaxRetries()),
		httpclient.WithUserAgent(userAgent),
	)
	breaker := httpclient.NewCircuitBreakerClient(client, cfg.GetBreakerThreshold())

	storage := sources.NewFileStorageManager(cfg.GetCacheDir())
	source := sources.NewRepositorySource(cfg.Index.URL, breaker, storage)
	directory := apps.NewDirectory(storage)

	return &SyncComponents{
		Storage:     storage,
		Directory:   directory,
		Manager:     pkgsync.NewManager(source, storage, directory, opts...),
		Persistence: status.NewFileStatusPersistence(cfg.GetStatusFile()),
		Breaker:     breaker,
		client:      client,
	}
}

// Close stops the HTTP client's background DNS refresh
func (c *SyncComponents) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// AppComponents groups the long-running components of the server
//
//nolint:revive // This name is fine
type AppComponents struct {
	*SyncComponents

	// SyncCoordinator schedules background syncs
	SyncCoordinator coordinator.Coordinator

	// Telemetry holds the tracer and meter providers
	Telemetry *telemetry.Telemetry

	// ownsTelemetry is set when the app created Telemetry and must shut it down
	ownsTelemetry bool
}
