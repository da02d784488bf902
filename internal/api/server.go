// Package api provides the REST API server for the application directory.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stringlate/appdir/internal/sync/coordinator"
	"github.com/stringlate/appdir/internal/telemetry"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares      []func(http.Handler) http.Handler
	metricsHandler   http.Handler
	directoryMetrics *telemetry.DirectoryMetrics
	upstreams        UpstreamReporter
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h at /metrics. A nil handler leaves the route unregistered.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithDirectoryMetrics records query metrics for the listing endpoint
func WithDirectoryMetrics(m *telemetry.DirectoryMetrics) ServerOption {
	return func(cfg *serverConfig) {
		cfg.directoryMetrics = m
	}
}

// WithUpstreamReporter adds upstream breaker states to the readiness response
func WithUpstreamReporter(u UpstreamReporter) ServerOption {
	return func(cfg *serverConfig) {
		cfg.upstreams = u
	}
}

// NewServer creates the HTTP router over the directory and the sync coordinator
func NewServer(directory Directory, coord coordinator.Coordinator, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(directory, cfg.upstreams))
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}
	r.Mount("/v1", NewRoutes(directory, coord, cfg.directoryMetrics).Router())

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
