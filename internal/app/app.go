// Package app provides application lifecycle management for the directory server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/config"
)

// DirectoryApp encapsulates all components needed to run the directory API server
type DirectoryApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the background sync and the HTTP server. It blocks until the
// HTTP server stops or fails.
func (app *DirectoryApp) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop stops the sync coordinator, then shuts down the HTTP server and
// telemetry within timeout.
func (app *DirectoryApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := app.httpServer.Shutdown(shutdownCtx)

	if app.components.ownsTelemetry {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}
	if app.components.SyncComponents != nil {
		app.components.Close()
	}

	if serverErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", serverErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *DirectoryApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *DirectoryApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Directory returns the in-memory application directory
func (app *DirectoryApp) Directory() *apps.Directory {
	return app.components.Directory
}
