// Package example loads example documents and project descriptors.
//
// An example document pairs one raw input record with the output record the
// generated transformation must produce:
//
//	{"example_id": "emp-1", "description": "...", "input": {...}, "output": {...}}
//
// Numbers are normalized on load: integer literals become int64 and every
// other numeric literal becomes float64, so 85000 and 85000.0 stay distinct.
package example

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/value"
)

// Example is one input/output pair. Treat it as immutable once loaded.
type Example struct {
	ID          string      `json:"example_id"`
	Description string      `json:"description"`
	Input       interface{} `json:"input"`
	Output      interface{} `json:"output"`

	// Source is the file the example was read from ("" when built in memory).
	Source string `json:"-"`
}

// document mirrors the on-disk format. Unknown fields are rejected.
type document struct {
	ExampleID   string      `json:"example_id" yaml:"example_id"`
	Description string      `json:"description" yaml:"description"`
	Input       interface{} `json:"input" yaml:"input"`
	Output      interface{} `json:"output" yaml:"output"`
}

// Load reads one example document. JSON and YAML are selected by extension
// (.json, .yaml, .yml). Any decode failure is marked ErrSchemaInference:
// the document cannot be treated as structured data and should be skipped.
func Load(path string) (*Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read example %s", path)
	}

	ex, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, errors.Wrapf(err, "example %s", path)
	}
	ex.Source = path
	if ex.ID == "" {
		ex.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ex, nil
}

// Format names an example document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes an example document from data.
func Parse(data []byte, format Format) (*Example, error) {
	var doc document

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid YAML example document"), errors.ErrSchemaInference)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid JSON example document"), errors.ErrSchemaInference)
		}
	}

	if doc.Input == nil || doc.Output == nil {
		return nil, errors.Mark(
			errors.WithHint(errors.New("example document needs both input and output"),
				"documents have exactly the fields example_id, description, input, output"),
			errors.ErrSchemaInference)
	}

	return &Example{
		ID:          doc.ExampleID,
		Description: doc.Description,
		Input:       value.Normalize(doc.Input),
		Output:      value.Normalize(doc.Output),
	}, nil
}

// LoadResult separates usable examples from the documents that were skipped.
type LoadResult struct {
	Examples []*Example
	Skipped  []error
}

// LoadAll loads every path in order. Unreadable or unstructured documents
// are collected in Skipped instead of aborting.
func LoadAll(paths []string) *LoadResult {
	res := &LoadResult{}
	seen := make(map[string]string)
	for _, path := range paths {
		ex, err := Load(path)
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}
		if prev, dup := seen[ex.ID]; dup {
			res.Skipped = append(res.Skipped, errors.Mark(
				errors.Newf("example %s: duplicate example_id %q (first seen in %s)", path, ex.ID, prev),
				errors.ErrSchemaInference))
			continue
		}
		seen[ex.ID] = path
		res.Examples = append(res.Examples, ex)
	}
	return res
}
