package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stringlate/appdir/internal/status"
)

func TestShouldSync(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	tests := []struct {
		name     string
		status   *status.SyncStatus
		loaded   bool
		interval time.Duration
		want     Reason
	}{
		{
			name:   "running sync wins",
			status: &status.SyncStatus{Phase: status.SyncPhaseExtracting},
			want:   ReasonAlreadyInProgress,
		},
		{
			name:     "no index loaded",
			status:   &status.SyncStatus{Phase: status.SyncPhaseIdle},
			interval: 0,
			want:     ReasonIndexMissing,
		},
		{
			name:     "no status and no index",
			loaded:   false,
			interval: time.Hour,
			want:     ReasonIndexMissing,
		},
		{
			name:     "previous failure retried",
			status:   &status.SyncStatus{Phase: status.SyncPhaseFailed, LastSyncTime: &recent},
			loaded:   true,
			interval: time.Hour,
			want:     ReasonPreviousFailed,
		},
		{
			name:   "periodic sync disabled",
			status: &status.SyncStatus{Phase: status.SyncPhaseComplete, LastSyncTime: &stale},
			loaded: true,
			want:   ReasonNoPolicy,
		},
		{
			name:     "never synced by this process",
			status:   &status.SyncStatus{Phase: status.SyncPhaseIdle},
			loaded:   true,
			interval: time.Hour,
			want:     ReasonIntervalElapsed,
		},
		{
			name:     "interval elapsed",
			status:   &status.SyncStatus{Phase: status.SyncPhaseComplete, LastSyncTime: &stale},
			loaded:   true,
			interval: time.Hour,
			want:     ReasonIntervalElapsed,
		},
		{
			name:     "within interval",
			status:   &status.SyncStatus{Phase: status.SyncPhaseComplete, LastSyncTime: &recent},
			loaded:   true,
			interval: time.Hour,
			want:     ReasonUpToDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ShouldSync(tt.status, tt.loaded, tt.interval, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReason_ShouldSync(t *testing.T) {
	t.Parallel()

	assert.True(t, ReasonIndexMissing.ShouldSync())
	assert.True(t, ReasonPreviousFailed.ShouldSync())
	assert.True(t, ReasonIntervalElapsed.ShouldSync())
	assert.False(t, ReasonAlreadyInProgress.ShouldSync())
	assert.False(t, ReasonUpToDate.ShouldSync())
	assert.False(t, ReasonNoPolicy.ShouldSync())
	assert.Equal(t, "up-to-date", ReasonUpToDate.String())
}
