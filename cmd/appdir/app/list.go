package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stringlate/appdir/internal/api"
	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/sources"
)

// errNoIndex is returned by list when nothing has been synced yet
var errNoIndex = errors.New("no index available, run 'appdir sync' first")

type listOptions struct {
	all    bool
	filter string
	format string
}

func newListCmd(v *viper.Viper) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications from the persisted index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			directory := apps.NewDirectory(sources.NewFileStorageManager(cfg.GetCacheDir()))
			loaded, err := directory.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load index: %w", err)
			}
			if !loaded {
				return errNoIndex
			}

			return printApplications(cmd.OutOrStdout(), directory.Applications(!opts.all, opts.filter), opts.format)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, fmt.Sprintf("List every application instead of the first %d", apps.DefaultLimit))
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Case-insensitive substring of the application name")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format (table|json)")

	return cmd
}

func printApplications(out io.Writer, entries []apps.Application, format string) error {
	switch format {
	case "json":
		resp := make([]api.ApplicationResponse, 0, len(entries))
		for _, app := range entries {
			resp = append(resp, api.NewApplicationResponse(app))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSUMMARY")
		for _, app := range entries {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", app.ID(), app.Name(), app.Summary())
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
