// Package coordinator runs the sync pipeline in the background.
//
// The coordinator sits on top of sync.Manager and handles scheduling and
// status bookkeeping:
//
//   - restores the persisted SyncStatus on start, marking syncs interrupted
//     by a crash as failed
//   - polls on a jittered ticker and asks sync.ShouldSync whether a run is due
//   - runs on-demand syncs requested by the HTTP API with a context that
//     outlives the request
//   - persists the status before and after every run
//
// Scheduled and requested runs share one single-flight guard, so at most one
// sync is in flight per coordinator.
package coordinator
