// Package rawcfg turns one or more YAML configuration files into a nested
// string-keyed mapping, keeping the verbatim file text for embedding in the
// generated document.
package rawcfg

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Raw is the merged configuration: section name → option name → value.
// All values are carried as strings; typed interpretation happens in the
// section resolver.
type Raw struct {
	Sections map[string]map[string]string
	// Text is the verbatim concatenation of all input files, in load
	// order. It is embedded in the generated document and must survive a
	// generate/extract round trip byte for byte.
	Text string
}

// Load reads and merges the given YAML files left to right: a later file's
// options override an earlier file's options of the same section and name.
func Load(paths ...string) (*Raw, error) {
	raw := &Raw{Sections: map[string]map[string]string{}}
	var texts []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rawcfg: read %s: %w", path, err)
		}
		if err := raw.merge(data); err != nil {
			return nil, fmt.Errorf("rawcfg: parse %s: %w", path, err)
		}
		texts = append(texts, string(data))
	}
	raw.Text = strings.Join(texts, "")
	return raw, nil
}

// Parse decodes a single YAML document from memory, for tests and for the
// extract round trip.
func Parse(data []byte) (*Raw, error) {
	raw := &Raw{Sections: map[string]map[string]string{}, Text: string(data)}
	if err := raw.merge(data); err != nil {
		return nil, fmt.Errorf("rawcfg: %w", err)
	}
	return raw, nil
}

func (r *Raw) merge(data []byte) error {
	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	for section, opts := range doc {
		dst := r.Sections[section]
		if dst == nil {
			dst = map[string]string{}
			r.Sections[section] = dst
		}
		for name, value := range opts {
			dst[name] = stringify(value)
		}
	}
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Section returns the named section's options, or nil if absent.
func (r *Raw) Section(name string) map[string]string {
	return r.Sections[name]
}

// SectionNames returns all section names, sorted.
func (r *Raw) SectionNames() []string {
	names := make([]string, 0, len(r.Sections))
	for name := range r.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
