// Package index decodes the F-Droid repository index and encodes the
// minimized form that is persisted in the cache root.
//
// The minimized index keeps the F-Droid element names so that a persisted
// file can be decoded by the same code path as the full upstream index:
//
//	<fdroid>
//	  <application id="org.example.reader">
//	    <id>org.example.reader</id>
//	    <name>Reader</name>
//	    <summary>Reads things</summary>
//	    <icon>org.example.reader.1.png</icon>
//	    <source>https://git.example.org/reader</source>
//	  </application>
//	</fdroid>
//
// Every other element of the upstream schema is dropped on encode.
package index

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/stringlate/appdir/internal/apps"
)

const (
	rootElement        = "fdroid"
	applicationElement = "application"
	idAttribute        = "id"

	idElement      = "id"
	nameElement    = "name"
	summaryElement = "summary"
	iconElement    = "icon"
	sourceElement  = "source"
)

// ErrMalformedIndex is returned when the index is not well-formed XML or is not an F-Droid index.
var ErrMalformedIndex = errors.New("malformed index")

// DecodeStats describes what Decode did with the entries it saw.
type DecodeStats struct {
	// Decoded is the number of applications returned
	Decoded int
	// Skipped is the number of application entries dropped because they had no usable name
	Skipped int
}

// Decode parses an index into applications in document order.
// Application entries without a non-blank <name> are skipped; other missing
// fields default to the empty string.
func Decode(r io.Reader) ([]apps.Application, error) {
	result, _, err := DecodeWithStats(r)
	return result, err
}

// DecodeWithStats is Decode that additionally reports how many entries were skipped.
func DecodeWithStats(r io.Reader) ([]apps.Application, DecodeStats, error) {
	var stats DecodeStats

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, stats, fmt.Errorf("%w: document has no root element", ErrMalformedIndex)
	}
	if root.Tag != rootElement {
		return nil, stats, fmt.Errorf("%w: unexpected root element <%s>", ErrMalformedIndex, root.Tag)
	}

	elements := root.SelectElements(applicationElement)
	result := make([]apps.Application, 0, len(elements))
	for _, el := range elements {
		id := childText(el, idElement)
		if id == "" {
			id = el.SelectAttrValue(idAttribute, "")
		}

		app, err := apps.NewApplication(
			id,
			childText(el, nameElement),
			childText(el, summaryElement),
			childText(el, iconElement),
			childText(el, sourceElement),
		)
		if err != nil {
			stats.Skipped++
			slog.Debug("Skipping index entry", "id", id, "error", err)
			continue
		}
		result = append(result, app)
	}
	stats.Decoded = len(result)

	return result, stats, nil
}

// Encode writes the minimized index for the given applications.
// Output is deterministic for a given input order.
func Encode(w io.Writer, entries iter.Seq[apps.Application]) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootElement)

	for app := range entries {
		el := root.CreateElement(applicationElement)
		if app.ID() != "" {
			el.CreateAttr(idAttribute, app.ID())
		}
		setChild(el, idElement, app.ID())
		setChild(el, nameElement, app.Name())
		setChild(el, summaryElement, app.Summary())
		setChild(el, iconElement, app.Icon())
		setChild(el, sourceElement, app.SourceCodeURL())
	}

	// Carriage returns are written as character references so the decoder's
	// line ending normalization leaves them alone.
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true

	// Leaf whitespace is kept so that blank-padded values survive a round trip
	settings := etree.NewIndentSettings()
	settings.Spaces = 2
	settings.PreserveLeafWhitespace = true
	doc.IndentWithSettings(settings)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// childText returns the text of the first child with the given tag, or "".
func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return child.Text()
}

// setChild appends <tag>value</tag> unless value is empty.
func setChild(el *etree.Element, tag, value string) {
	if value == "" {
		return
	}
	el.CreateElement(tag).SetText(value)
}
