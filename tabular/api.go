package tabular

import (
	"context"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/httpclient"
	"github.com/teranos/exemplar/internal/value"
)

// maxAPIBody caps how much of a remote response is read.
const maxAPIBody = 32 << 20

// APISource reads a JSON array of objects, or an object holding one under RowsKey.
type APISource struct {
	url     string
	rowsKey string
	headers map[string]string
	client  *httpclient.SaferClient
}

// NewAPISource creates an API source
func NewAPISource(cfg Config) *APISource {
	rowsKey := cfg.RowsKey
	if rowsKey == "" {
		rowsKey = "rows"
	}
	return &APISource{
		url:     cfg.URL,
		rowsKey: rowsKey,
		headers: cfg.Headers,
		client:  clientFor(cfg),
	}
}

// Kind implements Source
func (s *APISource) Kind() string { return KindAPI }

// Validate implements Source
func (s *APISource) Validate() error {
	if s.url == "" {
		return errors.NewInvalidConfigError("api collaborator needs a url")
	}
	if _, err := s.client.ValidateURL(s.url); err != nil {
		return errors.Mark(errors.Wrap(err, "api collaborator url"), errors.ErrInvalidConfig)
	}
	return nil
}

// Fetch implements Source
func (s *APISource) Fetch(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", s.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Newf("fetching %s returned status %d: %s", s.url, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxAPIBody))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "response from %s is not JSON", s.url)
	}

	rows, err := s.rows(value.Normalize(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "response from %s", s.url)
	}
	return newResult(s.url, nil, rows), nil
}

func (s *APISource) rows(payload interface{}) ([]map[string]interface{}, error) {
	list, ok := payload.([]interface{})
	if !ok {
		obj, isObj := payload.(map[string]interface{})
		if !isObj {
			return nil, errors.New("expected a JSON array or object")
		}
		list, ok = obj[s.rowsKey].([]interface{})
		if !ok {
			return nil, errors.WithHintf(errors.Newf("object has no %q array", s.rowsKey),
				"set rows_key in the collaborator section")
		}
	}

	rows := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf("row %d is not an object", i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
