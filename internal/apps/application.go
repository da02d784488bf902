// Package apps holds the application entity and the in-memory directory
// that is populated from the persisted F-Droid index.
package apps

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyName is returned when an application is constructed without a display name.
	ErrEmptyName = errors.New("application name cannot be empty")
	// ErrInvalidText is returned when a field holds invalid UTF-8 or a character an XML document cannot carry.
	ErrInvalidText = errors.New("invalid character in application field")
)

// Application is a single directory entry. It is immutable once constructed.
type Application struct {
	id            string
	name          string
	summary       string
	icon          string
	sourceCodeURL string
}

// NewApplication creates an Application. The name must contain at least one
// non-whitespace character; every other field is stored as given. All fields
// must be valid UTF-8 made of characters allowed in XML.
func NewApplication(id, name, summary, icon, sourceCodeURL string) (Application, error) {
	if strings.TrimSpace(name) == "" {
		return Application{}, ErrEmptyName
	}
	fields := []struct{ field, value string }{
		{"id", id}, {"name", name}, {"summary", summary}, {"icon", icon}, {"source", sourceCodeURL},
	}
	for _, f := range fields {
		if !validText(f.value) {
			return Application{}, fmt.Errorf("%w: %s %q", ErrInvalidText, f.field, f.value)
		}
	}
	return Application{
		id:            id,
		name:          name,
		summary:       summary,
		icon:          icon,
		sourceCodeURL: sourceCodeURL,
	}, nil
}

// MustApplication is like NewApplication but panics on error. Intended for tests and fixtures.
func MustApplication(id, name, summary, icon, sourceCodeURL string) Application {
	app, err := NewApplication(id, name, summary, icon, sourceCodeURL)
	if err != nil {
		panic(err)
	}
	return app
}

// ID returns the package identifier, e.g. "org.example.reader".
func (a Application) ID() string { return a.id }

// Name returns the display name.
func (a Application) Name() string { return a.name }

// Summary returns the one-line description.
func (a Application) Summary() string { return a.summary }

// Icon returns the icon file reference as published by the repository.
func (a Application) Icon() string { return a.icon }

// SourceCodeURL returns the canonical source location used to locate the project.
func (a Application) SourceCodeURL() string { return a.sourceCodeURL }

// validText reports whether s is valid UTF-8 containing only XML 1.0 characters.
func validText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}
