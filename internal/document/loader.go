// Package document loads and decodes input files into the nested
// map/sequence/scalar tree consumed by the flatten engine.
//
// Supported formats: JSON, YAML, CSV, and HTML tables. Each decoder
// normalizes its output so the engine only ever sees map[string]any,
// []any, and scalars.
package document

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies an input document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// DetectFormat infers the document format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("document: cannot detect format from path %q", path)
	}
}

// Load opens a file, detects its format from the extension, and decodes it.
func Load(path string) (any, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	return LoadAs(path, format)
}

// LoadAs opens a file and decodes it as the given format.
func LoadAs(path string, format Format) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("document: open: %w", err)
	}
	defer f.Close()
	return Decode(f, format)
}

// Decode parses one document from r in the given format.
func Decode(r io.Reader, format Format) (any, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(r)
	case FormatYAML:
		return decodeYAML(r)
	case FormatCSV:
		return decodeCSV(r)
	case FormatHTML:
		return decodeHTML(r)
	default:
		return nil, fmt.Errorf("document: unsupported format %q", format)
	}
}

// decodeJSON parses a single JSON value. Numbers are kept as json.Number so
// integer identity survives into the emitted tables instead of degrading to
// float64.
func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("document: decode json: %w", err)
	}

	// Reject trailing garbage after the first value.
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("document: trailing data after json document")
	}
	return doc, nil
}

// decodeYAML parses one YAML document and normalizes it: yaml.v3 can emit
// map[any]any for mappings with non-string keys, which the flatten engine
// does not accept.
func decodeYAML(r io.Reader) (any, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("document: empty yaml document")
		}
		return nil, fmt.Errorf("document: decode yaml: %w", err)
	}
	return normalizeYAML(doc), nil
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return v
	}
}

// decodeCSV parses a header-first CSV file into a flat object sequence: one
// map per data row, keyed by the raw header cells (the engine sanitizes
// names downstream). All cell values are strings.
func decodeCSV(r io.Reader) (any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []any{}, nil
		}
		return nil, fmt.Errorf("document: read csv header: %w", err)
	}

	var out []any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document: read csv row: %w", err)
		}
		row := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// DecodeBytes is a convenience wrapper over Decode for in-memory input.
func DecodeBytes(b []byte, format Format) (any, error) {
	return Decode(bytes.NewReader(b), format)
}
