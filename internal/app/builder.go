package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stringlate/appdir/internal/api"
	"github.com/stringlate/appdir/internal/config"
	"github.com/stringlate/appdir/internal/sources"
	pkgsync "github.com/stringlate/appdir/internal/sync"
	"github.com/stringlate/appdir/internal/sync/coordinator"
	"github.com/stringlate/appdir/internal/telemetry"
	"github.com/stringlate/appdir/internal/tracing"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second // must exceed defaultRequestTimeout
	defaultIdleTimeout    = 60 * time.Second
)

// DirectoryAppOptions configures the directory app builder
type DirectoryAppOptions func(*directoryAppConfig) error

type directoryAppConfig struct {
	config *config.Config

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	telemetry          *telemetry.Telemetry
	coordinatorOptions []coordinator.Option
}

func baseConfig(opts ...DirectoryAppOptions) (*directoryAppConfig, error) {
	cfg := &directoryAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAddress()
	}

	return cfg, nil
}

// NewDirectoryApp builds the server: telemetry, the sync components, the
// coordinator and the HTTP server. The persisted index, if any, is loaded
// before it returns.
func NewDirectoryApp(ctx context.Context, opts ...DirectoryAppOptions) (*DirectoryApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components := &AppComponents{Telemetry: cfg.telemetry}
	if components.Telemetry == nil {
		indexURL := cfg.config.Index.URL
		if indexURL == "" {
			indexURL = sources.DefaultIndexURL
		}
		components.Telemetry, err = telemetry.New(ctx, cfg.config.Telemetry, tracing.AttrIndexURL.String(indexURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		components.ownsTelemetry = true
	}

	cleanupNeeded := true
	defer func() {
		if !cleanupNeeded {
			return
		}
		if components.SyncComponents != nil {
			components.Close()
		}
		if components.ownsTelemetry {
			_ = components.Telemetry.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	directoryMetrics, err := buildSyncComponents(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components, directoryMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &DirectoryApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding server.address
func WithAddress(addr string) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout of the default middlewares
func WithRequestTimeout(timeout time.Duration) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = timeout
		if cfg.writeTimeout <= timeout {
			cfg.writeTimeout = timeout + 5*time.Second
		}
		return nil
	}
}

// WithTelemetry uses t instead of building telemetry from the configuration.
// The caller keeps ownership and shuts it down.
func WithTelemetry(t *telemetry.Telemetry) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithCoordinatorOptions passes options through to the sync coordinator
func WithCoordinatorOptions(opts ...coordinator.Option) DirectoryAppOptions {
	return func(cfg *directoryAppConfig) error {
		cfg.coordinatorOptions = append(cfg.coordinatorOptions, opts...)
		return nil
	}
}

// buildSyncComponents builds the sync manager and coordinator and loads the
// persisted index into the directory.
func buildSyncComponents(
	ctx context.Context,
	b *directoryAppConfig,
	components *AppComponents,
) (*telemetry.DirectoryMetrics, error) {
	slog.Info("Initializing sync components")

	meterProvider := components.Telemetry.MeterProvider()

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	directoryMetrics, err := telemetry.NewDirectoryMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory metrics: %w", err)
	}

	components.SyncComponents = NewSyncComponents(b.config,
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithDirectoryMetrics(directoryMetrics),
		pkgsync.WithTracerProvider(components.Telemetry.TracerProvider()),
	)

	indexPath := components.Storage.IndexPath()
	loaded, err := components.Directory.Load(ctx)
	switch {
	case err != nil:
		slog.Warn("Failed to load persisted index", "path", indexPath, "error", err)
	case !loaded:
		slog.Info("No persisted index yet", "path", indexPath)
	default:
		slog.Info("Loaded persisted index", "path", indexPath, "applications", components.Directory.Len())
	}
	directoryMetrics.RecordApplications(ctx, components.Directory.Len())

	interval := b.config.GetSyncInterval()
	if interval == 0 {
		slog.Info("Periodic sync disabled; use POST /v1/sync or 'appdir sync' to refresh the index")
	}

	components.SyncCoordinator = coordinator.New(
		components.Manager,
		components.Persistence,
		components.Directory,
		interval,
		b.coordinatorOptions...,
	)

	slog.Info("Sync components initialized successfully")
	return directoryMetrics, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *directoryAppConfig,
	components *AppComponents,
	directoryMetrics *telemetry.DirectoryMetrics,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	httpMetrics, err := telemetry.NewHTTPMetrics(components.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	// Tracing and metrics wrap everything so rejected requests are observed too
	middlewares := append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(components.Telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	router := api.NewServer(components.Directory, components.SyncCoordinator,
		api.WithMiddlewares(middlewares...),
		api.WithMetricsHandler(components.Telemetry.MetricsHandler()),
		api.WithDirectoryMetrics(directoryMetrics),
		api.WithUpstreamReporter(components.Breaker),
	)

	return &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}, nil
}
