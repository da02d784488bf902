// Package archive unpacks the zip-format index artifact published by the repository.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned for archive entries that would be written outside the destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination directory")

// UnpackZip extracts every file of the zip archive at src into destDir and
// returns the paths written, in archive order. When flatten is set directory
// components of entry names are dropped and all files land directly in destDir.
// Existing files are overwritten.
func UnpackZip(src, destDir string, flatten bool) ([]string, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination directory: %w", err)
	}

	var extracted []string
	for _, file := range reader.File {
		target, err := entryPath(root, file.Name, flatten)
		if err != nil {
			return extracted, err
		}

		if file.FileInfo().IsDir() {
			if flatten {
				continue
			}
			if err := os.MkdirAll(target, 0750); err != nil {
				return extracted, fmt.Errorf("failed to create directory %s: %w", file.Name, err)
			}
			continue
		}

		if err := extractFile(file, target); err != nil {
			return extracted, err
		}
		extracted = append(extracted, target)
	}

	return extracted, nil
}

// entryPath resolves the on-disk path for an archive entry, rejecting zip-slip paths.
func entryPath(root, name string, flatten bool) (string, error) {
	name = filepath.FromSlash(name)
	if flatten {
		name = filepath.Base(name)
	}

	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", file.Name, err)
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer func() { _ = rc.Close() }()

	//nolint:gosec // target has been checked against the destination root
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	//nolint:gosec // archive size is bounded by the repository index
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	return nil
}
