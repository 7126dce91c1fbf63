package tabular

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/teranos/exemplar/errors"
)

// CSVSource reads a spreadsheet export with a header row.
type CSVSource struct {
	path      string
	delimiter rune
}

// NewCSVSource creates a CSV source from cfg.Path
func NewCSVSource(cfg Config) *CSVSource {
	delim := ','
	if cfg.Delimiter != "" {
		delim, _ = utf8.DecodeRuneInString(cfg.Delimiter)
	}
	return &CSVSource{path: cfg.Path, delimiter: delim}
}

// Kind implements Source
func (s *CSVSource) Kind() string { return KindCSV }

// Validate implements Source
func (s *CSVSource) Validate() error {
	if s.path == "" {
		return errors.NewInvalidConfigError("csv collaborator needs a path")
	}
	if s.delimiter == utf8.RuneError || s.delimiter == '"' || s.delimiter == '\n' {
		return errors.NewInvalidConfigError("csv delimiter %q is not usable", s.delimiter)
	}
	return nil
}

// Fetch implements Source
func (s *CSVSource) Fetch(ctx context.Context) (*Result, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", s.path)
	}
	defer f.Close()

	return s.read(ctx, f)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = s.delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return newResult(s.path, []string{}, nil), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", s.path)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []map[string]interface{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", s.path)
		}
		rows = append(rows, cellsToRow(columns, record))
	}

	return newResult(s.path, columns, rows), nil
}

// cellsToRow maps cells onto columns. Empty cells become null so
// inference sees them as missing values rather than empty strings.
func cellsToRow(columns, cells []string) map[string]interface{} {
	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if i >= len(cells) || strings.TrimSpace(cells[i]) == "" {
			row[col] = nil
			continue
		}
		row[col] = cells[i]
	}
	return row
}
