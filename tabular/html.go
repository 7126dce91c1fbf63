package tabular

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/httpclient"
)

// HTMLTableSource reads one table out of an HTML document, from a file or URL.
type HTMLTableSource struct {
	path       string
	url        string
	selector   string
	tableIndex int
	headers    map[string]string
	client     *httpclient.SaferClient
}

// NewHTMLTableSource creates an HTML table source
func NewHTMLTableSource(cfg Config) *HTMLTableSource {
	selector := cfg.Selector
	if selector == "" {
		selector = "table"
	}
	return &HTMLTableSource{
		path:       cfg.Path,
		url:        cfg.URL,
		selector:   selector,
		tableIndex: cfg.TableIndex,
		headers:    cfg.Headers,
		client:     clientFor(cfg),
	}
}

// Kind implements Source
func (s *HTMLTableSource) Kind() string { return KindHTML }

// Validate implements Source
func (s *HTMLTableSource) Validate() error {
	if (s.path == "") == (s.url == "") {
		return errors.NewInvalidConfigError("html collaborator needs exactly one of path or url")
	}
	if s.tableIndex < 0 {
		return errors.NewInvalidConfigError("html table_index must be >= 0, got %d", s.tableIndex)
	}
	if s.url != "" {
		if _, err := s.client.ValidateURL(s.url); err != nil {
			return errors.Mark(errors.Wrap(err, "html collaborator url"), errors.ErrInvalidConfig)
		}
	}
	return nil
}

// Fetch implements Source
func (s *HTMLTableSource) Fetch(ctx context.Context) (*Result, error) {
	body, sourceID, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse HTML from %s", sourceID)
	}
	return s.extract(doc, sourceID)
}

func (s *HTMLTableSource) open(ctx context.Context) (io.ReadCloser, string, error) {
	if s.path != "" {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, s.path, errors.Wrapf(err, "failed to open %s", s.path)
		}
		return f, s.path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, s.url, errors.Wrap(err, "failed to create request")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.url, errors.Wrapf(err, "failed to fetch %s", s.url)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, s.url, errors.Newf("fetching %s returned status %d", s.url, resp.StatusCode)
	}
	return resp.Body, s.url, nil
}

func (s *HTMLTableSource) extract(doc *goquery.Document, sourceID string) (*Result, error) {
	tables := doc.Find(s.selector)
	if s.tableIndex >= tables.Length() {
		return nil, errors.WithHintf(
			errors.Newf("%s has %d tables matching %q, wanted index %d", sourceID, tables.Length(), s.selector, s.tableIndex),
			"table_index counts from 0")
	}
	table := tables.Eq(s.tableIndex)

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return newResult(sourceID, []string{}, nil), nil
	}

	// Header: the first thead row, else the first row of the table
	header := table.Find("thead tr").First()
	if header.Length() == 0 {
		header = rows.First()
	}
	columns := cellTexts(header.Find("th, td"))

	var out []map[string]interface{}
	rows.Each(func(_ int, tr *goquery.Selection) {
		if tr.IsSelection(header) || tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		cells := cellTexts(tr.Find("td, th"))
		if len(cells) == 0 {
			return
		}
		out = append(out, cellsToRow(columns, cells))
	})

	return newResult(sourceID, columns, out), nil
}

func cellTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

func clientFor(cfg Config) *httpclient.SaferClient {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	block := !cfg.AllowPrivate
	return httpclient.NewWithOptions(timeout, httpclient.Options{BlockPrivateIP: &block})
}
