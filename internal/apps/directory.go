package apps

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// DefaultLimit is the number of entries returned when a caller asks for a limited view.
const DefaultLimit = 50

// ErrIndexNotFound is returned by an IndexReader when no persisted index exists yet.
var ErrIndexNotFound = errors.New("persisted index not found")

// IndexReader reads the persisted minimized index.
type IndexReader interface {
	// Get returns the persisted applications in stored order.
	// It returns an error wrapping ErrIndexNotFound when nothing has been persisted.
	Get(ctx context.Context) ([]Application, error)
}

// Directory owns the canonical in-memory list of applications.
// The list is only ever replaced as a whole; readers always receive copies.
type Directory struct {
	mu     sync.RWMutex // Protects entries, loaded
	reader IndexReader

	entries []Application
	loaded  bool
}

// NewDirectory creates an empty directory backed by the given persisted index reader.
func NewDirectory(reader IndexReader) *Directory {
	return &Directory{reader: reader}
}

// Load replaces the directory contents with the persisted index.
// It reports false with a nil error when no index has been persisted yet, in
// which case the directory is reset to empty. On read or decode errors the
// directory is left unchanged.
func (d *Directory) Load(ctx context.Context) (bool, error) {
	if d.reader == nil {
		return false, errors.New("directory has no index reader")
	}

	entries, err := d.reader.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			d.mu.Lock()
			d.entries, d.loaded = nil, false
			d.mu.Unlock()
			slog.Debug("No persisted index found, directory is empty")
			return false, nil
		}
		return false, err
	}

	d.Replace(entries)
	slog.Debug("Loaded persisted index", "applications", len(entries))
	return true, nil
}

// Replace swaps the whole collection. The directory keeps its own copy of entries.
func (d *Directory) Replace(entries []Application) {
	fresh := slices.Clone(entries)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = fresh
	d.loaded = true
}

// Loaded reports whether the directory holds an index, either read by Load or set by Replace.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Applications returns a bounded view in stored order.
//
// An empty filter selects every entry. Otherwise the filter is trimmed and
// case-folded and an entry matches when its case-folded name contains it.
// When applyLimit is set at most DefaultLimit entries are returned.
func (d *Directory) Applications(applyLimit bool, filter string) []Application {
	d.mu.RLock()
	defer d.mu.RUnlock()

	take := len(d.entries)
	if applyLimit && take > DefaultLimit {
		take = DefaultLimit
	}

	filter = strings.TrimSpace(filter)
	if filter == "" {
		return slices.Clone(d.entries[:take])
	}

	folder := cases.Fold()
	filter = folder.String(filter)

	result := make([]Application, 0, take)
	for _, app := range d.entries {
		if len(result) == take {
			break
		}
		if strings.Contains(folder.String(app.name), filter) {
			result = append(result, app)
		}
	}
	return result
}

// All returns a sequence over every entry in stored order. Each iteration
// walks the snapshot taken when it starts, so a concurrent Replace does not
// affect an iteration already in progress.
func (d *Directory) All() iter.Seq[Application] {
	return func(yield func(Application) bool) {
		d.mu.RLock()
		snapshot := d.entries
		d.mu.RUnlock()

		for _, app := range snapshot {
			if !yield(app) {
				return
			}
		}
	}
}
