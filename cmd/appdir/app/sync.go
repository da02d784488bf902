package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dirapp "github.com/stringlate/appdir/internal/app"
	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
)

// eventBuffer covers every notification of one run
const eventBuffer = 8

func newSyncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the F-Droid index and refresh the local directory",
		Long: `Download index.jar, extract index.xml and persist the minimized index.

Progress is printed as each stage starts. With --if-due the sync only runs
when no index exists, the previous attempt failed, or sync.interval has
elapsed since the last successful sync. With --reset the persisted index and
sync history are discarded first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ifDue, err := cmd.Flags().GetBool("if-due")
			if err != nil {
				return err
			}
			reset, err := cmd.Flags().GetBool("reset")
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), v, cmd.OutOrStdout(), syncOptions{ifDue: ifDue, reset: reset})
		},
	}
	cmd.Flags().Bool("if-due", false, "Only sync when the index is missing, stale or the last sync failed")
	cmd.Flags().Bool("reset", false, "Delete the persisted index and sync history before syncing")
	cmd.MarkFlagsMutuallyExclusive("if-due", "reset")
	return cmd
}

type syncOptions struct {
	ifDue bool
	reset bool
}

func runSync(parent context.Context, v *viper.Viper, out io.Writer, opts syncOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	comps := dirapp.NewSyncComponents(cfg)
	defer comps.Close()

	current, err := comps.Persistence.LoadStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync status: %w", err)
	}
	if current.Phase.IsRunning() {
		current.Message = fmt.Sprintf("Sync interrupted during %s", current.Phase)
		current.Phase = status.SyncPhaseFailed
	}

	if opts.reset {
		if err := comps.Storage.Delete(ctx); err != nil {
			return err
		}
		current = &status.SyncStatus{Phase: status.SyncPhaseIdle}
		_, _ = fmt.Fprintln(out, "Removed persisted index")
	}

	if opts.ifDue {
		loaded, err := comps.Directory.Load(ctx)
		if err != nil {
			slog.Warn("Persisted index is unreadable", "error", err)
		}
		reason := pkgsync.ShouldSync(current, loaded, cfg.GetSyncInterval(), time.Now())
		if !reason.ShouldSync() {
			_, err := fmt.Fprintf(out, "Index is up to date (%s), %d applications available\n", reason, comps.Directory.Len())
			return err
		}
		slog.Debug("Sync is due", "reason", reason.String())
	}

	// The attempt is recorded once the first stage starts, so a run rejected
	// because the cache is locked leaves the other process's status alone.
	started := false
	begin := func() {
		started = true
		now := time.Now()
		current.Phase = status.SyncPhaseDownloading
		current.Message = "Sync in progress"
		current.LastAttempt = &now
		current.AttemptCount++
		saveStatus(ctx, comps.Persistence, current)
	}

	events := pkgsync.NewChannelObserver(eventBuffer)
	observer := pkgsync.MultiObserver{
		pkgsync.ObserverFuncs{Update: func(string, string) {
			if !started {
				begin()
			}
		}},
		events,
		pkgsync.LogObserver{Logger: slog.Default().With("trigger", "cli")},
	}

	type outcome struct {
		result *pkgsync.Result
		err    *pkgsync.Error
	}
	done := make(chan outcome, 1)
	go func() {
		result, syncErr := comps.Manager.PerformSync(ctx, observer)
		done <- outcome{result: result, err: syncErr}
	}()

	// A rejected run never notifies, so stop reading once it reports busy.
	var (
		res      outcome
		finished bool
	)
	stream := events.Events()
	for !finished || stream != nil {
		select {
		case event, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			printEvent(out, event)
		case res = <-done:
			finished = true
			if res.err != nil && res.err.Kind == pkgsync.KindBusy {
				stream = nil
			}
		}
	}

	if res.err != nil && res.err.Kind == pkgsync.KindBusy {
		return res.err
	}
	if !started {
		begin()
	}

	if res.err != nil {
		current.Phase = status.SyncPhaseFailed
		current.Message = res.err.Error()
		saveStatus(context.WithoutCancel(ctx), comps.Persistence, current)
		return res.err
	}

	completedAt := time.Now()
	current.Phase = status.SyncPhaseComplete
	current.Message = "Sync completed successfully"
	current.LastSyncTime = &completedAt
	current.LastSyncHash = res.result.Hash
	current.ApplicationCount = res.result.ApplicationCount
	current.AttemptCount = 0
	saveStatus(ctx, comps.Persistence, current)
	return nil
}

func printEvent(out io.Writer, event pkgsync.Event) {
	if event.Finished {
		_, _ = fmt.Fprintln(out, event.Description)
		return
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", event.Title, event.Description)
}

func saveStatus(ctx context.Context, persistence status.StatusPersistence, s *status.SyncStatus) {
	if err := persistence.SaveStatus(ctx, s); err != nil {
		slog.ErrorContext(ctx, "Failed to persist sync status", "error", err)
	}
}
