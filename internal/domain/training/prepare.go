package training

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/vectorize"
)

// Prepare fits the vectorizer and both label encoders on records and returns
// the vectorized dataset ready for Run. Every row must carry a category and
// a priority; empty title and description are allowed.
func Prepare(ctx context.Context, records []model.Record, opts ...vectorize.Option) (Input, error) {
	if len(records) == 0 {
		return Input{}, fmt.Errorf("%w: no records", ErrConfiguration)
	}

	docs := make([]string, len(records))
	cats := make([]string, len(records))
	pris := make([]string, len(records))
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return Input{}, err
		}
		cats[i] = strings.TrimSpace(r.Category)
		pris[i] = strings.TrimSpace(r.Priority)
		if cats[i] == "" || pris[i] == "" {
			return Input{}, fmt.Errorf("%w: row %d is missing a category or priority label", ErrConfiguration, i)
		}
		docs[i] = r.Request().Text()
	}

	v := vectorize.New(opts...)
	if err := v.Fit(docs); err != nil {
		return Input{}, fmt.Errorf("%w: fit vectorizer: %w", ErrConfiguration, err)
	}
	X, err := v.TransformAll(docs)
	if err != nil {
		return Input{}, fmt.Errorf("transform corpus: %w", err)
	}

	catEnc, err := labels.Fit(cats)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %s: %w", ErrConfiguration, model.TargetCategory, err)
	}
	priEnc, err := labels.Fit(pris)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %s: %w", ErrConfiguration, model.TargetPriority, err)
	}
	yc, err := catEnc.EncodeAll(cats)
	if err != nil {
		return Input{}, err
	}
	yp, err := priEnc.EncodeAll(pris)
	if err != nil {
		return Input{}, err
	}

	return Input{
		Dataset:    Dataset{X: X, YCategory: yc, YPriority: yp},
		Vectorizer: v,
		Category:   catEnc,
		Priority:   priEnc,
		DataRunID:  uuid.NewString(),
	}, nil
}
