// Package tabular reads spreadsheets, document tables and API responses
// into one uniform row/column shape. Inference depends only on Result,
// never on the source format.
package tabular

import (
	"context"
	"sort"

	"github.com/teranos/exemplar/errors"
)

// Result is the uniform tabular shape every Source produces.
type Result struct {
	Rows     []map[string]interface{} `json:"rows"`
	Columns  []string                 `json:"columns"`
	RowCount int                      `json:"row_count"`
	SourceID string                   `json:"source_id"`
}

// Source is implemented once per collaborator variant.
type Source interface {
	// Kind names the variant ("csv", "html", "api").
	Kind() string
	// Validate checks the configuration without touching the source.
	Validate() error
	// Fetch reads the source into a Result.
	Fetch(ctx context.Context) (*Result, error)
}

// Config describes one collaborator in a project descriptor.
type Config struct {
	Kind string `toml:"kind"` // csv, html, api

	// csv and html
	Path      string `toml:"path"`
	Delimiter string `toml:"delimiter"` // csv only; default ","

	// html
	Selector   string `toml:"selector"`    // default "table"
	TableIndex int    `toml:"table_index"` // which match of Selector

	// api (html also accepts URL instead of Path)
	URL            string            `toml:"url"`
	RowsKey        string            `toml:"rows_key"` // object key holding the rows; default "rows"
	Headers        map[string]string `toml:"headers"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	AllowPrivate   bool              `toml:"allow_private"` // permit loopback/private hosts
}

// Source kinds
const (
	KindCSV  = "csv"
	KindHTML = "html"
	KindAPI  = "api"
)

// New constructs the Source variant named by cfg.Kind and validates it.
func New(cfg Config) (Source, error) {
	var src Source
	switch cfg.Kind {
	case KindCSV:
		src = NewCSVSource(cfg)
	case KindHTML:
		src = NewHTMLTableSource(cfg)
	case KindAPI:
		src = NewAPISource(cfg)
	case "":
		return nil, errors.NewInvalidConfigError("collaborator kind is required (csv, html, api)")
	default:
		return nil, errors.NewInvalidConfigError("unknown collaborator kind %q (csv, html, api)", cfg.Kind)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return src, nil
}

// newResult finalizes rows into a Result. When columns is nil the column
// list is the sorted union of row keys.
func newResult(sourceID string, columns []string, rows []map[string]interface{}) *Result {
	if columns == nil {
		seen := make(map[string]bool)
		for _, row := range rows {
			for k := range row {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
		}
		sort.Strings(columns)
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return &Result{
		Rows:     rows,
		Columns:  columns,
		RowCount: len(rows),
		SourceID: sourceID,
	}
}

// Records returns the rows as generic records for schema inference.
func (r *Result) Records() []interface{} {
	out := make([]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row
	}
	return out
}
