package sources

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/klauspost/compress/zip"
)

// TestIndexEntry describes an application for NewTestIndexXML
type TestIndexEntry struct {
	ID     string
	Name   string
	Source string
}

// NewTestIndexXML renders a small upstream-style index with repository
// metadata and extra per-application fields that minimization drops.
func NewTestIndexXML(entries ...TestIndexEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<fdroid>` + "\n")
	b.WriteString(`  <repo name="Test Repo" timestamp="1490000000" url="https://repo.example.org/repo" version="17">` + "\n")
	b.WriteString(`    <description>Test repository</description>` + "\n")
	b.WriteString(`  </repo>` + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, `  <application id="%s">`+"\n", html.EscapeString(e.ID))
		fmt.Fprintf(&b, "    <id>%s</id>\n", html.EscapeString(e.ID))
		fmt.Fprintf(&b, "    <name>%s</name>\n", html.EscapeString(e.Name))
		b.WriteString("    <license>GPLv3</license>\n")
		if e.Source != "" {
			fmt.Fprintf(&b, "    <source>%s</source>\n", html.EscapeString(e.Source))
		}
		b.WriteString("  </application>\n")
	}
	b.WriteString("</fdroid>\n")
	return b.String()
}

// NewTestIndexArchive builds a jar-like zip archive holding indexXML as
// index.xml next to a manifest. An empty indexXML produces an archive without an index.
func NewTestIndexArchive(indexXML string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	manifest, err := w.Create("META-INF/MANIFEST.MF")
	if err != nil {
		return nil, err
	}
	if _, err := manifest.Write([]byte("Manifest-Version: 1.0\n")); err != nil {
		return nil, err
	}

	if indexXML != "" {
		f, err := w.Create(IndexFileName)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(indexXML)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
