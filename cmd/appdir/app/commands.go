// Package app provides the commands of the appdir binary.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringlate/appdir/internal/config"
	"github.com/stringlate/appdir/internal/logging"
	"github.com/stringlate/appdir/internal/versions"
)

const (
	flagConfig   = "config"
	flagCacheDir = "cache-dir"
	flagDebug    = "debug"

	keyConfig   = "config"
	keyDebug    = "debug"
	keyLogLevel = "log.level"
)

// NewRootCmd creates the root command. Each call returns an independent
// command tree bound to its own viper instance.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()
	var flush func()

	rootCmd := &cobra.Command{
		Use:               "appdir",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "F-Droid application directory",
		Long: `appdir keeps a local, searchable directory of the applications published in
the F-Droid repository index. It downloads index.jar, extracts index.xml, and
persists a minimized index that is served over HTTP or listed from the CLI.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, f, err := logging.New(logging.WithLevel(logLevel(v)))
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			flush = f
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if flush != nil {
				flush()
			}
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "Path to configuration file (YAML format)")
	flags.String(flagCacheDir, "", "Directory holding the persisted index")
	flags.Bool(flagDebug, false, "Enable debug logging")

	for key, flag := range map[string]string{
		keyConfig:          flagConfig,
		config.KeyCacheDir: flagCacheDir,
		keyDebug:           flagDebug,
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			slog.Error("Error binding flag", "flag", flag, "error", err)
		}
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newSyncCmd(v))
	rootCmd.AddCommand(newListCmd(v))
	rootCmd.AddCommand(newValidateCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// logLevel resolves the log level from --debug or APPDIR_LOG_LEVEL
func logLevel(v *viper.Viper) slog.Level {
	if v.GetBool(keyDebug) {
		return slog.LevelDebug
	}
	raw := v.GetString(keyLogLevel)
	level, ok := logging.ParseLevel(raw)
	if !ok {
		slog.Warn("Invalid log level, using INFO", "value", raw)
	}
	return level
}

// loadConfig reads the configuration file named by --config, if any, and
// applies flag and environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	opts := []config.Option{config.WithOverrides(v)}
	if path := v.GetString(keyConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "appdir %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
