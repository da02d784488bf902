package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// StatusPersistence defines the interface for sync status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the sync status to persistent storage
	SaveStatus(ctx context.Context, status *SyncStatus) error

	// LoadStatus loads the sync status from persistent storage
	// Returns an idle SyncStatus if nothing has been saved yet (first run)
	LoadStatus(ctx context.Context) (*SyncStatus, error)
}

// fileStatusPersistence implements StatusPersistence using a YAML file
type fileStatusPersistence struct {
	filePath string
}

// NewFileStatusPersistence creates a new file-based status persistence writing to filePath
func NewFileStatusPersistence(filePath string) StatusPersistence {
	return &fileStatusPersistence{
		filePath: filePath,
	}
}

// SaveStatus saves the sync status to the YAML file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *SyncStatus) error {
	if status == nil {
		return errors.New("status cannot be nil")
	}

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(f.filePath), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, f.filePath); err != nil {
		// Clean up temp file on error
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// LoadStatus loads the sync status from the YAML file
func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*SyncStatus, error) {
	// #nosec G304 -- filePath comes from trusted configuration
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist - this is OK for first run
			return &SyncStatus{Phase: SyncPhaseIdle}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status SyncStatus
	if err := yaml.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}

	return &status, nil
}

// memoryStatusPersistence keeps the status in memory only
type memoryStatusPersistence struct {
	mu     sync.Mutex
	status SyncStatus
}

// NewMemoryStatusPersistence creates a StatusPersistence that does not touch the filesystem
func NewMemoryStatusPersistence() StatusPersistence {
	return &memoryStatusPersistence{status: SyncStatus{Phase: SyncPhaseIdle}}
}

func (m *memoryStatusPersistence) SaveStatus(_ context.Context, status *SyncStatus) error {
	if status == nil {
		return errors.New("status cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = *status
	return nil
}

func (m *memoryStatusPersistence) LoadStatus(_ context.Context) (*SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	statusCopy := m.status
	return &statusCopy, nil
}
