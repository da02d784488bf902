package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/stringlate/appdir/internal/status"
	pkgsync "github.com/stringlate/appdir/internal/sync"
)

const (
	// basePollingInterval is how often the coordinator re-evaluates whether a sync is due
	basePollingInterval = 2 * time.Minute
	// pollingJitter is the maximum random offset (±30 seconds) applied to the polling interval
	pollingJitter = 30 * time.Second
)

// IndexState reports whether an index is available to serve
type IndexState interface {
	Loaded() bool
}

//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks -source=coordinator.go Coordinator

// Coordinator schedules background syncs and owns the persisted sync status
type Coordinator interface {
	// Start runs the scheduling loop until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for it to exit
	Stop() error

	// RequestSync starts a sync in the background. It returns
	// pkgsync.ErrSyncInProgress if one is already running.
	RequestSync(observer pkgsync.ProgressObserver) error

	// GetStatus returns a copy of the current sync status
	GetStatus() *status.SyncStatus
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithPollingInterval replaces the jittered polling interval with a fixed one
func WithPollingInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.pollingInterval = func() time.Duration { return interval }
	}
}

type defaultCoordinator struct {
	manager     pkgsync.Manager
	persistence status.StatusPersistence
	index       IndexState
	interval    time.Duration

	pollingInterval func() time.Duration

	mu     gosync.Mutex
	status *status.SyncStatus

	syncing atomic.Bool
	started atomic.Bool
	wg      gosync.WaitGroup

	// ctx outlives individual requests so RequestSync runs are not tied to them
	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator. A zero interval disables periodic syncs; the
// coordinator then only runs syncs requested through RequestSync.
func New(
	manager pkgsync.Manager,
	persistence status.StatusPersistence,
	index IndexState,
	interval time.Duration,
	opts ...Option,
) Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &defaultCoordinator{
		manager:         manager,
		persistence:     persistence,
		index:           index,
		interval:        interval,
		pollingInterval: calculatePollingInterval,
		status:          &status.SyncStatus{Phase: status.SyncPhaseIdle},
		ctx:             ctx,
		cancelFunc:      cancel,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the base polling interval with a random jitter applied.
func calculatePollingInterval() time.Duration {
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

func (c *defaultCoordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}
	defer close(c.done)

	if err := c.loadStatus(ctx); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, c.cancelFunc)
	defer stop()

	if c.interval <= 0 {
		slog.InfoContext(ctx, "Periodic sync disabled, waiting for sync requests")
		<-c.ctx.Done()
		c.wg.Wait()
		return nil
	}

	pollingInterval := c.pollingInterval()
	slog.InfoContext(ctx, "Starting background sync coordinator",
		"sync_interval", c.interval,
		"polling_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.checkSync(c.ctx)

	for {
		select {
		case <-ticker.C:
			c.checkSync(c.ctx)
			ticker.Reset(c.pollingInterval())
		case <-c.ctx.Done():
			slog.InfoContext(ctx, "Sync coordinator stopping")
			c.wg.Wait()
			return nil
		}
	}
}

func (c *defaultCoordinator) Stop() error {
	c.cancelFunc()
	if c.started.Load() {
		<-c.done
	} else {
		c.wg.Wait()
	}
	return nil
}

func (c *defaultCoordinator) RequestSync(observer pkgsync.ProgressObserver) error {
	if c.ctx.Err() != nil {
		return errors.New("coordinator is stopped")
	}
	if !c.syncing.CompareAndSwap(false, true) {
		return pkgsync.ErrSyncInProgress
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.syncing.Store(false)
		c.performSync(c.ctx, observer)
	}()

	return nil
}

func (c *defaultCoordinator) GetStatus() *status.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *c.status
	return &copied
}

// loadStatus restores the persisted status. A status left in a running
// phase belongs to a process that died mid-sync.
func (c *defaultCoordinator) loadStatus(ctx context.Context) error {
	loaded, err := c.persistence.LoadStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync status: %w", err)
	}

	if interrupted := loaded.Phase; interrupted.IsRunning() {
		slog.WarnContext(ctx, "Previous sync was interrupted", "phase", interrupted)
		loaded.Phase = status.SyncPhaseFailed
		loaded.Message = fmt.Sprintf("Sync interrupted during %s", interrupted)
	}

	c.withStatus(func(s *status.SyncStatus) {
		// a sync requested before Start already owns the status
		if c.syncing.Load() {
			return
		}
		*s = *loaded
	})
	return nil
}

func (c *defaultCoordinator) checkSync(ctx context.Context) {
	if !c.syncing.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Sync already running, skipping scheduled check")
		return
	}
	defer c.syncing.Store(false)

	current := c.GetStatus()
	reason := pkgsync.ShouldSync(current, c.index.Loaded(), c.interval, time.Now())
	if !reason.ShouldSync() {
		slog.DebugContext(ctx, "Sync not needed", "reason", reason.String())
		return
	}

	slog.InfoContext(ctx, "Scheduled sync due", "reason", reason.String())
	c.performSync(ctx, nil)
}

// performSync runs one sync and persists the status before and after it.
// The attempt is recorded once the manager reports its first stage, so a run
// rejected because another process holds the cache leaves the status alone.
func (c *defaultCoordinator) performSync(ctx context.Context, observer pkgsync.ProgressObserver) {
	started := false
	begin := func() {
		started = true
		var attempt int
		c.withStatus(func(s *status.SyncStatus) {
			now := time.Now()
			s.Phase = status.SyncPhaseDownloading
			s.Message = "Sync in progress"
			s.LastAttempt = &now
			s.AttemptCount++
			attempt = s.AttemptCount
		})
		c.persist(ctx)
		slog.InfoContext(ctx, "Starting sync operation", "attempt", attempt)
	}

	phaseTracker := pkgsync.ObserverFuncs{
		Update: func(string, string) {
			if !started {
				begin()
			}
			phase := c.manager.Phase()
			c.withStatus(func(s *status.SyncStatus) { s.Phase = phase })
		},
	}

	result, syncErr := c.manager.PerformSync(ctx, pkgsync.MultiObserver{phaseTracker, observer})
	if syncErr != nil && syncErr.Kind == pkgsync.KindBusy {
		slog.InfoContext(ctx, "Sync skipped, another sync holds the cache", "error", syncErr.Err)
		return
	}
	if !started {
		begin()
	}

	c.withStatus(func(s *status.SyncStatus) {
		if syncErr != nil {
			s.Phase = status.SyncPhaseFailed
			s.Message = syncErr.Error()
			return
		}
		now := time.Now()
		s.Phase = status.SyncPhaseComplete
		s.Message = "Sync completed successfully"
		s.LastSyncTime = &now
		s.LastSyncHash = result.Hash
		s.ApplicationCount = result.ApplicationCount
		s.AttemptCount = 0
	})
	c.persist(context.WithoutCancel(ctx))
}

func (c *defaultCoordinator) withStatus(fn func(*status.SyncStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.status)
}

func (c *defaultCoordinator) persist(ctx context.Context) {
	if err := c.persistence.SaveStatus(ctx, c.GetStatus()); err != nil {
		slog.ErrorContext(ctx, "Failed to persist sync status", "error", err)
	}
}
