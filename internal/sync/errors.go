package sync

import (
	"errors"
	"fmt"

	"github.com/stringlate/appdir/internal/status"
)

var (
	// ErrSyncInProgress is returned when a sync is already running on this manager
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrCacheLocked is returned when another process holds the cache root lock
	ErrCacheLocked = errors.New("cache directory is locked by another process")
)

// Kind classifies the stage failure of a sync.
type Kind string

const (
	// KindNetwork means the archive could not be downloaded
	KindNetwork Kind = "network"

	// KindExtraction means the archive could not be unpacked or held no index
	KindExtraction Kind = "extraction"

	// KindMalformedIndex means the raw index could not be parsed
	KindMalformedIndex Kind = "malformed-index"

	// KindPersistence means the minimized index could not be written
	KindPersistence Kind = "persistence"

	// KindCanceled means the context was canceled between stages
	KindCanceled Kind = "canceled"

	// KindBusy means the sync was rejected because another one is running
	KindBusy Kind = "busy"
)

// Error is the structured failure of a sync run.
type Error struct {
	Kind    Kind
	Phase   status.SyncPhase
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, phase status.SyncPhase, message string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message, Err: err}
}
