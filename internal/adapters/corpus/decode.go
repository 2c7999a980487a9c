package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/okian/triage/internal/domain/model"
)

// Column names.
const (
	ColumnID          = "id"
	ColumnTitle       = "title"
	ColumnDescription = "description"
	ColumnCategory    = "category"
	ColumnPriority    = "priority"
)

// selector picks the array of records out of a decoded JSON document.
type selector struct {
	expr  string
	query *gojq.Query
}

func newSelector(expr string) (*selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "." {
		return &selector{expr: "."}, nil
	}
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSelector, expr, err)
	}
	return &selector{expr: expr, query: q}, nil
}

// rows applies the selector and returns the selected array. The first value
// produced by the query must be an array of objects.
func (s *selector) rows(ctx context.Context, doc any) ([]any, error) {
	v := doc
	if s.query != nil {
		iter := s.query.RunWithContext(ctx, doc)
		out, ok := iter.Next()
		if !ok {
			return nil, fmt.Errorf("%w: selector %q produced no value", ErrMalformed, s.expr)
		}
		if err, isErr := out.(error); isErr {
			return nil, fmt.Errorf("%w: selector %q: %w", ErrMalformed, s.expr, err)
		}
		v = out
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an array of records, got %T", ErrMalformed, v)
	}
	return arr, nil
}

// decodeJSON parses data, selects the record array and converts it.
func decodeJSON(ctx context.Context, data []byte, sel *selector) ([]model.Record, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	arr, err := sel.rows(ctx, doc)
	if err != nil {
		return nil, err
	}
	return fromObjects(arr)
}

// fromObjects converts decoded JSON objects. A column counts as present if
// any row carries the key; null or absent title and description become "".
func fromObjects(arr []any) ([]model.Record, error) {
	present := map[string]bool{}
	out := make([]model.Record, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T, not an object", ErrMalformed, i, item)
		}
		fields := map[string]*string{
			ColumnID:          &out[i].ID,
			ColumnTitle:       &out[i].Title,
			ColumnDescription: &out[i].Description,
			ColumnCategory:    &out[i].Category,
			ColumnPriority:    &out[i].Priority,
		}
		for col, dst := range fields {
			raw, ok := obj[col]
			if !ok {
				continue
			}
			present[col] = true
			s, err := scalar(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %w", ErrMalformed, i, col, err)
			}
			*dst = s
		}
	}
	if len(arr) > 0 {
		if err := requireColumns(present); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

func requireColumns(present map[string]bool) error {
	for _, col := range []string{ColumnCategory, ColumnPriority} {
		if !present[col] {
			return fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}
	return nil
}
