// Package extract recovers the original configuration text and any
// embedded data files from a generated document. It is the round-trip
// inverse of the builder's provenance step.
package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"phylogen/internal/beastgen"
	"phylogen/internal/xmltree"
)

// ErrNoProvenance marks a document without an embedded configuration.
var ErrNoProvenance = errors.New("extract: document carries no embedded configuration")

// Result holds everything recovered from one document.
type Result struct {
	ConfigText string
	// DataFiles maps the embedded file's original path to its contents.
	DataFiles map[string]string
}

// Read scans a document for provenance comments.
func Read(r io.Reader) (*Result, error) {
	res := &Result{DataFiles: map[string]string{}}
	dec := xml.NewDecoder(r)
	found := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extract: parsing document: %w", err)
		}
		c, ok := tok.(xml.Comment)
		if !ok {
			continue
		}
		text := xmltree.UnescapeComment(string(c))
		switch {
		case strings.HasPrefix(text, beastgen.ConfigMarker):
			res.ConfigText = strings.TrimPrefix(text, beastgen.ConfigMarker)
			found = true
		case strings.HasPrefix(text, beastgen.EmbeddedMarker):
			rest := strings.TrimPrefix(text, beastgen.EmbeddedMarker)
			name, contents, ok := strings.Cut(rest, "\n")
			if !ok {
				continue
			}
			res.DataFiles[strings.TrimSpace(name)] = contents
		}
	}
	if !found {
		return nil, ErrNoProvenance
	}
	return res, nil
}

// ReadFile is Read over a file path.
func ReadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Write materialises the recovered config (and data files) under dir.
// Existing files are refused unless overwrite is set. Returns the paths
// written.
func (r *Result) Write(dir, configName string, overwrite bool) ([]string, error) {
	type out struct {
		path     string
		contents string
	}
	outs := []out{{path: filepath.Join(dir, configName), contents: r.ConfigText}}
	names := make([]string, 0, len(r.DataFiles))
	for name := range r.DataFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Embedded paths may come from another machine; only the base
		// name is trusted.
		outs = append(outs, out{
			path:     filepath.Join(dir, filepath.Base(name)),
			contents: r.DataFiles[name],
		})
	}

	if !overwrite {
		for _, o := range outs {
			if _, err := os.Stat(o.path); err == nil {
				return nil, fmt.Errorf("extract: %s already exists", o.path)
			}
		}
	}
	var written []string
	for _, o := range outs {
		if err := os.WriteFile(o.path, []byte(o.contents), 0o644); err != nil {
			return written, err
		}
		written = append(written, o.path)
	}
	return written, nil
}
