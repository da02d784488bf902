// Package status provides sync status tracking and persistence for the application directory.
package status

import "time"

// SyncPhase represents the current phase of a synchronization operation
type SyncPhase string

const (
	// SyncPhaseIdle means no sync has run since startup
	SyncPhaseIdle SyncPhase = "Idle"

	// SyncPhaseDownloading means the index archive is being downloaded
	SyncPhaseDownloading SyncPhase = "Downloading"

	// SyncPhaseExtracting means the index archive is being unpacked
	SyncPhaseExtracting SyncPhase = "Extracting"

	// SyncPhaseParsing means the raw index is being parsed and the minimized index persisted
	SyncPhaseParsing SyncPhase = "Parsing"

	// SyncPhaseComplete means sync completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// IsTerminal reports whether the phase ends a sync
func (p SyncPhase) IsTerminal() bool {
	return p == SyncPhaseComplete || p == SyncPhaseFailed
}

// IsRunning reports whether a sync is in flight in this phase
func (p SyncPhase) IsRunning() bool {
	switch p {
	case SyncPhaseDownloading, SyncPhaseExtracting, SyncPhaseParsing:
		return true
	default:
		return false
	}
}

// SyncStatus represents the current state of directory synchronization
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `yaml:"phase" json:"phase"`

	// Message provides additional information about the sync status
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `yaml:"lastAttempt,omitempty" json:"lastAttempt,omitempty"`

	// AttemptCount is the number of sync attempts since last success
	AttemptCount int `yaml:"attemptCount,omitempty" json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `yaml:"lastSyncTime,omitempty" json:"lastSyncTime,omitempty"`

	// LastSyncHash is the SHA256 of the persisted index written by the last successful sync
	LastSyncHash string `yaml:"lastSyncHash,omitempty" json:"lastSyncHash,omitempty"`

	// ApplicationCount is the number of applications in the directory after the last successful sync
	ApplicationCount int `yaml:"applicationCount,omitempty" json:"applicationCount,omitempty"`
}
