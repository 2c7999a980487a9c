// Package corpus reads labeled support requests from files or the backend
// API and writes them back out as CSV or JSON.
package corpus

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/okian/triage/internal/domain/model"
)

// Source yields a labeled corpus.
type Source interface {
	Records(ctx context.Context) ([]model.Record, error)
}

// Option applies a configuration option to a source.
type Option func(*options)

type options struct {
	selector string
	timeout  time.Duration
	backoff  time.Duration
	retries  int
	maxBody  int64
}

func defaultOptions() options {
	return options{
		selector: ".",
		timeout:  30 * time.Second,
		backoff:  time.Second,
		retries:  3,
		maxBody:  64 << 20,
	}
}

// WithSelector sets a jq expression that selects the record array from a
// JSON or YAML document, for example ".data" or ".items[]|select(.category)".
func WithSelector(expr string) Option {
	return func(o *options) { o.selector = expr }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBackoff sets the base retry delay; attempt n waits base*2^(n-1).
func WithBackoff(base time.Duration) Option {
	return func(o *options) {
		if base > 0 {
			o.backoff = base
		}
	}
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithMaxBodyBytes caps the size of a backend response.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// FileSource reads a corpus file. The format follows the extension: .csv,
// .json, .yaml or .yml.
type FileSource struct {
	path string
	sel  *selector
}

// NewFileSource creates a FileSource.
func NewFileSource(path string, opts ...Option) (*FileSource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	sel, err := newSelector(o.selector)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, sel: sel}, nil
}

// Records implements Source.
func (f *FileSource) Records(ctx context.Context) ([]model.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(f.path)); ext {
	case ".csv":
		return ReadCSV(bytes.NewReader(data))
	case ".json":
		return decodeJSON(ctx, data, f.sel)
	case ".yaml", ".yml":
		js, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return decodeJSON(ctx, js, f.sel)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// LoadFile reads the corpus at path.
func LoadFile(ctx context.Context, path string, opts ...Option) ([]model.Record, error) {
	src, err := NewFileSource(path, opts...)
	if err != nil {
		return nil, err
	}
	return src.Records(ctx)
}

// ReadCSV reads a CSV corpus with a header row. Column order is free;
// title and description columns may be absent and are then empty.
func ReadCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}

	idx := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[h] = i
	}
	present := map[string]bool{}
	for col := range idx {
		present[col] = true
	}
	if err := requireColumns(present); err != nil {
		return nil, err
	}

	get := func(row []string, col string) string {
		if i, ok := idx[col]; ok {
			return row[i]
		}
		return ""
	}

	var out []model.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		out = append(out, model.Record{
			ID:          get(row, ColumnID),
			Title:       get(row, ColumnTitle),
			Description: get(row, ColumnDescription),
			Category:    get(row, ColumnCategory),
			Priority:    get(row, ColumnPriority),
		})
	}
	return out, nil
}

// WriteCSV writes records with an id,title,description,category,priority header.
func WriteCSV(w io.Writer, recs []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnID, ColumnTitle, ColumnDescription, ColumnCategory, ColumnPriority}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{r.ID, r.Title, r.Description, r.Category, r.Priority}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes recs to path as CSV or indented JSON, following the
// extension. For JSON a non-nil v is written instead of recs so callers can
// keep extra fields.
func WriteFile(path string, recs []model.Record, v any) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".json" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if ext == ".csv" {
		if err := WriteCSV(f, recs); err != nil {
			return err
		}
		return f.Close()
	}
	if v == nil {
		v = recs
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}
