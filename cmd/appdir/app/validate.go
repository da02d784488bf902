package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringlate/appdir/internal/sources"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			indexURL := cfg.Index.URL
			if indexURL == "" {
				indexURL = sources.DefaultIndexURL
			}
			interval := "disabled"
			if d := cfg.GetSyncInterval(); d > 0 {
				interval = d.String()
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Valid configuration")
			_, _ = fmt.Fprintf(out, "  Index URL:     %s\n", indexURL)
			_, _ = fmt.Fprintf(out, "  Cache dir:     %s\n", cfg.GetCacheDir())
			_, _ = fmt.Fprintf(out, "  Status file:   %s\n", cfg.GetStatusFile())
			_, _ = fmt.Fprintf(out, "  Sync interval: %s\n", interval)
			_, _ = fmt.Fprintf(out, "  Telemetry:     %t\n", cfg.Telemetry != nil && cfg.Telemetry.Enabled)
			return nil
		},
	}
}
