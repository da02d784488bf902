package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stringlate/appdir/internal/archive"
	"github.com/stringlate/appdir/internal/httpclient"
)

const (
	// DefaultRepositoryURL is the base URL of the official F-Droid repository
	DefaultRepositoryURL = "https://f-droid.org/repo"

	// DefaultIndexURL is the location of the signed index archive
	DefaultIndexURL = DefaultRepositoryURL + "/" + ArchiveFileName
)

// ErrIndexMissing is returned when an extracted archive holds no index file
var ErrIndexMissing = errors.New("archive does not contain " + IndexFileName)

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks -source=repository.go RepositorySource

// RepositorySource retrieves the raw index from a remote repository
type RepositorySource interface {
	// URL returns the archive location
	URL() string

	// Download fetches the archive into the cache root, replacing any previous archive
	Download(ctx context.Context) (int64, error)

	// Extract unpacks the archive into the staging directory and returns the path of the raw index
	Extract(ctx context.Context) (string, error)

	// RemoveArchive deletes the transient archive
	RemoveArchive() error

	// Cleanup removes the staging directory
	Cleanup() error
}

type repositorySource struct {
	url     string
	client  httpclient.Client
	storage StorageManager
}

// NewRepositorySource creates a source that downloads indexURL with client into the storage cache root.
// An empty indexURL uses DefaultIndexURL.
func NewRepositorySource(indexURL string, client httpclient.Client, storage StorageManager) RepositorySource {
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}
	return &repositorySource{
		url:     indexURL,
		client:  client,
		storage: storage,
	}
}

func (r *repositorySource) URL() string {
	return r.url
}

func (r *repositorySource) Download(ctx context.Context) (int64, error) {
	written, err := r.client.Download(ctx, r.url, r.storage.ArchivePath())
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", r.url, err)
	}
	return written, nil
}

func (r *repositorySource) Extract(_ context.Context) (string, error) {
	staging := r.storage.StagingDir()

	// Leftovers from an interrupted sync must not be mistaken for this archive's contents
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("failed to clear staging directory: %w", err)
	}

	if _, err := archive.UnpackZip(r.storage.ArchivePath(), staging, false); err != nil {
		return "", err
	}

	rawIndex := filepath.Join(staging, IndexFileName)
	if _, err := os.Stat(rawIndex); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrIndexMissing
		}
		return "", fmt.Errorf("failed to stat extracted index: %w", err)
	}
	return rawIndex, nil
}

func (r *repositorySource) RemoveArchive() error {
	if err := os.Remove(r.storage.ArchivePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}
	return nil
}

func (r *repositorySource) Cleanup() error {
	if err := os.RemoveAll(r.storage.StagingDir()); err != nil {
		slog.Warn("Failed to remove staging directory", "path", r.storage.StagingDir(), "error", err)
		return err
	}
	return nil
}
