// Package datafile reads delimited feature datasets into a taxon → feature
// → value mapping. Two layouts are understood: a wide layout with one
// taxon column and one column per feature, and a long (CLDF-style) layout
// with Language_ID / Feature_ID / Value columns.
package datafile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// MissingValue marks a datapoint with no observation.
const MissingValue = "?"

// Dataset maps taxon → feature → value.
type Dataset map[string]map[string]string

// DataError reports a malformed or inconsistent input dataset. It is fatal.
type DataError struct {
	File string
	Msg  string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error in %s: %s", e.File, e.Msg)
}

// Options control how a file is interpreted. Zero values auto-detect.
type Options struct {
	Format     string    // "", "wide" or "cldf"
	LangColumn string    // wide layout: explicit taxon column name
	Stdin      io.Reader // source used when the filename is "stdin"
}

var langColumnNames = []string{
	"iso", "iso_code", "glotto", "glottocode", "language", "language_id", "lang", "lang_id",
}

// Load reads the dataset at path. The special name "stdin" reads from
// opts.Stdin (or os.Stdin).
func Load(path string, opts Options) (Dataset, error) {
	var r io.Reader
	if path == "stdin" {
		r = opts.Stdin
		if r == nil {
			r = os.Stdin
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("datafile: %w", err)
		}
		defer f.Close()
		r = f
	}
	return Read(r, path, opts)
}

// Read parses a dataset from r; name is used in error messages and for
// delimiter detection by extension.
func Read(r io.Reader, name string, opts Options) (Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("datafile: read %s: %w", name, err)
	}
	text := string(data)

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = detectDelimiter(name, text)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &DataError{File: name, Msg: err.Error()}
	}
	if len(rows) < 2 {
		return nil, &DataError{File: name, Msg: "no data rows"}
	}
	header, rows := rows[0], rows[1:]

	format := opts.Format
	if format == "" {
		format = detectFormat(header)
	}
	switch format {
	case "cldf":
		return readLong(header, rows, name)
	case "wide":
		return readWide(header, rows, name, opts.LangColumn)
	default:
		return nil, &DataError{File: name, Msg: fmt.Sprintf("unknown file format %q", format)}
	}
}

func detectDelimiter(name, text string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	if strings.HasSuffix(strings.ToLower(name), ".csv") {
		return ','
	}
	firstLine, _, _ := strings.Cut(text, "\n")
	if strings.Count(firstLine, "\t") > strings.Count(firstLine, ",") {
		return '\t'
	}
	return ','
}

func detectFormat(header []string) string {
	has := map[string]bool{}
	for _, h := range header {
		has[h] = true
	}
	if has["Language_ID"] && has["Value"] && (has["Feature_ID"] || has["Parameter_ID"]) {
		return "cldf"
	}
	return "wide"
}

func readWide(header []string, rows [][]string, name, langColumn string) (Dataset, error) {
	langIdx := -1
	if langColumn != "" {
		for i, h := range header {
			if h == langColumn {
				langIdx = i
			}
		}
	} else {
		for i, h := range header {
			for _, cand := range langColumnNames {
				if strings.ToLower(h) == cand {
					langIdx = i
					break
				}
			}
			if langIdx >= 0 {
				break
			}
		}
	}
	if langIdx < 0 {
		return nil, &DataError{File: name, Msg: "could not find taxon identifier column"}
	}

	out := Dataset{}
	for _, row := range rows {
		if len(row) <= langIdx {
			continue
		}
		taxon := row[langIdx]
		if _, dup := out[taxon]; dup {
			return nil, &DataError{File: name, Msg: fmt.Sprintf("duplicate taxon %q", taxon)}
		}
		features := map[string]string{}
		for i, h := range header {
			if i == langIdx || i >= len(row) {
				continue
			}
			features[h] = row[i]
		}
		out[taxon] = features
	}
	return out, nil
}

func readLong(header []string, rows [][]string, name string) (Dataset, error) {
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	featCol, ok := col["Feature_ID"]
	if !ok {
		featCol = col["Parameter_ID"]
	}
	langCol, valCol := col["Language_ID"], col["Value"]

	out := Dataset{}
	for _, row := range rows {
		if len(row) <= langCol || len(row) <= featCol || len(row) <= valCol {
			continue
		}
		taxon := row[langCol]
		if out[taxon] == nil {
			out[taxon] = map[string]string{}
		}
		// Later rows win when a taxon/feature pair repeats.
		out[taxon][row[featCol]] = row[valCol]
	}
	return out, nil
}

// Taxa returns the sorted taxon identifiers of a dataset.
func (d Dataset) Taxa() []string {
	out := make([]string, 0, len(d))
	for t := range d {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Features returns the sorted union of feature names across all taxa.
func (d Dataset) Features() []string {
	seen := map[string]bool{}
	for _, fs := range d {
		for f := range fs {
			seen[f] = true
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
