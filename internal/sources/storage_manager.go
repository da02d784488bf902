package sources

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/stringlate/appdir/internal/apps"
	"github.com/stringlate/appdir/internal/index"
)

const (
	// IndexFileName is the name of the persisted minimized index
	IndexFileName = "index.xml"

	// ArchiveFileName is the name of the transient downloaded archive
	ArchiveFileName = "index.jar"

	// StagingDirName is the transient directory the archive is extracted into
	StagingDirName = ".extract"
)

//go:generate mockgen -destination=mocks/mock_storage_manager.go -package=mocks -source=storage_manager.go StorageManager

// StorageManager defines the interface for persisting the minimized index in the cache root
type StorageManager interface {
	apps.IndexReader

	// Store encodes the applications in minimized form and atomically replaces
	// the persisted index. It returns the SHA256 of the written file.
	Store(ctx context.Context, entries iter.Seq[apps.Application]) (string, error)

	// Delete removes the persisted index
	Delete(ctx context.Context) error

	// IndexPath is the location of the persisted index
	IndexPath() string

	// ArchivePath is the location the transient archive is downloaded to
	ArchivePath() string

	// StagingDir is the transient directory the archive is extracted into
	StagingDir() string
}

// fileStorageManager implements StorageManager using local filesystem
type fileStorageManager struct {
	basePath string
}

// NewFileStorageManager creates a new file-based storage manager rooted at the cache directory
func NewFileStorageManager(basePath string) StorageManager {
	return &fileStorageManager{
		basePath: basePath,
	}
}

func (f *fileStorageManager) IndexPath() string {
	return filepath.Join(f.basePath, IndexFileName)
}

func (f *fileStorageManager) ArchivePath() string {
	return filepath.Join(f.basePath, ArchiveFileName)
}

func (f *fileStorageManager) StagingDir() string {
	return filepath.Join(f.basePath, StagingDirName)
}

// Store saves the minimized index
func (f *fileStorageManager) Store(_ context.Context, entries iter.Seq[apps.Application]) (string, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	var buf bytes.Buffer
	if err := index.Encode(&buf, entries); err != nil {
		return "", fmt.Errorf("failed to encode index: %w", err)
	}
	data := buf.Bytes()

	filePath := f.IndexPath()

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to write temporary index file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		// Clean up temp file on error
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename index file: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get reads and decodes the persisted index
func (f *fileStorageManager) Get(_ context.Context) ([]apps.Application, error) {
	filePath := f.IndexPath()

	//nolint:gosec // File path is internally managed by StorageManager, not user input
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("index file %s: %w", filePath, apps.ErrIndexNotFound)
		}
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	entries, err := index.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index file: %w", err)
	}
	return entries, nil
}

// Delete removes the persisted index file
func (f *fileStorageManager) Delete(_ context.Context) error {
	if err := os.Remove(f.IndexPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, nothing to delete
			return nil
		}
		return fmt.Errorf("failed to delete index file: %w", err)
	}
	return nil
}
