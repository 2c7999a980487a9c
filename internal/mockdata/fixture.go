package mockdata

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/triage/internal/domain/predict"
	"github.com/okian/triage/internal/domain/training"
)

// FixtureVersion is the model version recorded in fixture metadata.
const FixtureVersion = "1.0.0"

// Fixture is a bundle trained on generated requests.
type Fixture struct {
	Requests []Request
	Input    training.Input
	Result   *training.Result
	Bundle   *predict.Bundle
}

// TrainFixture generates n requests from seed, prepares them and trains a
// bundle without persisting it. opts are applied after the fixture defaults.
func TrainFixture(ctx context.Context, n int, seed int64, opts ...training.Option) (*Fixture, error) {
	ref := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reqs, err := New(WithSeed(seed), WithClock(func() time.Time { return ref })).Generate(ctx, n)
	if err != nil {
		return nil, err
	}

	in, err := training.Prepare(ctx, Records(reqs))
	if err != nil {
		return nil, fmt.Errorf("prepare fixture: %w", err)
	}

	all := append([]training.Option{
		training.WithModelVersion(FixtureVersion),
		training.WithClock(func() time.Time { return ref }),
	}, opts...)
	res, err := training.New(nil, all...).Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("train fixture: %w", err)
	}

	return &Fixture{
		Requests: reqs,
		Input:    in,
		Result:   res,
		Bundle: &predict.Bundle{
			Vectorizer:      in.Vectorizer,
			CategoryEncoder: in.Category,
			PriorityEncoder: in.Priority,
			CategoryModel:   res.CategoryModel,
			PriorityModel:   res.PriorityModel,
			Metadata:        res.Metadata,
		},
	}, nil
}
