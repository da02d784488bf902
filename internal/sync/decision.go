package sync

import (
	"time"

	"github.com/stringlate/appdir/internal/status"
)

// Reason explains a scheduling decision
type Reason string

const (
	// ReasonAlreadyInProgress means a sync is running
	ReasonAlreadyInProgress Reason = "sync-already-in-progress"

	// ReasonIndexMissing means no persisted index is loaded yet
	ReasonIndexMissing Reason = "index-missing"

	// ReasonPreviousFailed means the last attempt failed and is retried
	ReasonPreviousFailed Reason = "previous-sync-failed"

	// ReasonIntervalElapsed means the sync interval has passed since the last success
	ReasonIntervalElapsed Reason = "interval-elapsed"

	// ReasonUpToDate means the last successful sync is within the interval
	ReasonUpToDate Reason = "up-to-date"

	// ReasonNoPolicy means periodic sync is disabled and an index is present
	ReasonNoPolicy Reason = "up-to-date-no-policy"
)

// ShouldSync reports whether the reason calls for a sync
func (r Reason) ShouldSync() bool {
	switch r {
	case ReasonIndexMissing, ReasonPreviousFailed, ReasonIntervalElapsed:
		return true
	default:
		return false
	}
}

func (r Reason) String() string {
	return string(r)
}

// ShouldSync decides whether a scheduled sync is due. A zero interval
// disables periodic syncs but still syncs when no index is loaded.
func ShouldSync(syncStatus *status.SyncStatus, indexLoaded bool, interval time.Duration, now time.Time) Reason {
	if syncStatus != nil && syncStatus.Phase.IsRunning() {
		return ReasonAlreadyInProgress
	}
	if !indexLoaded {
		return ReasonIndexMissing
	}
	if syncStatus != nil && syncStatus.Phase == status.SyncPhaseFailed {
		return ReasonPreviousFailed
	}
	if interval <= 0 {
		return ReasonNoPolicy
	}
	if syncStatus == nil || syncStatus.LastSyncTime == nil {
		return ReasonIntervalElapsed
	}
	if !now.Before(syncStatus.LastSyncTime.Add(interval)) {
		return ReasonIntervalElapsed
	}
	return ReasonUpToDate
}
