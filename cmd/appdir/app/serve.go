package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dirapp "github.com/stringlate/appdir/internal/app"
	"github.com/stringlate/appdir/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application directory over HTTP",
		Long: `Serve the application directory over HTTP.

The persisted index is loaded on startup. When sync.interval is configured the
index is refreshed in the background; a sync can also be requested with
POST /v1/sync.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", config.DefaultAddress, "Address to listen on")
	if err := v.BindPFlag(config.KeyAddress, cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}

	return cmd
}

func runServe(parent context.Context, v *viper.Viper) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	app, err := dirapp.NewDirectoryApp(ctx,
		dirapp.WithConfig(cfg),
		dirapp.WithAddress(cfg.GetAddress()),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Start()
	}()

	var startErr error
	select {
	case <-ctx.Done():
	case startErr = <-serveErr:
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return errors.Join(startErr, err)
	}
	return startErr
}
