package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/triage/internal/adapters/artifact"
	"github.com/okian/triage/internal/adapters/corpus"
	"github.com/okian/triage/internal/domain/dedupe"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/training"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/pkg/logger"
	"github.com/okian/triage/pkg/metrics"
)

// uniqueSource drops records whose ID repeats an earlier one.
type uniqueSource struct {
	src    corpus.Source
	window int
}

// Unique wraps src so repeated request IDs are kept only once. A positive
// window bounds memory to that many recent IDs; a repeat older than the
// window is kept.
func Unique(src corpus.Source, window int) corpus.Source {
	return uniqueSource{src: src, window: window}
}

func (u uniqueSource) Records(ctx context.Context) ([]model.Record, error) {
	recs, err := u.src.Records(ctx)
	if err != nil {
		return nil, err
	}
	kept, dropped := dedupe.Records(ctx, dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(u.window)), recs)
	if dropped > 0 {
		logger.Get().Named("prepare").Warn(ctx, "dropped records with repeated ids",
			logger.Int("dropped", dropped), logger.Int("kept", len(kept)))
	}
	return kept, nil
}

// Prepare reads the corpus from src, fits the vectorizer and both label
// encoders and writes them with the vectorized features to the store's
// data directory.
func Prepare(ctx context.Context, src corpus.Source, store *artifact.Store, opts ...vectorize.Option) (training.Input, error) {
	log := logger.Get().Named("prepare")

	records, err := src.Records(ctx)
	if err != nil {
		return training.Input{}, fmt.Errorf("load corpus: %w", err)
	}
	log.Info(ctx, "corpus loaded", logger.Int("records", len(records)))

	in, err := training.Prepare(ctx, records, opts...)
	if err != nil {
		return training.Input{}, err
	}
	if err := store.WritePrepared(ctx, in); err != nil {
		return training.Input{}, fmt.Errorf("write prepared data: %w", err)
	}

	log.Info(ctx, "prepared data written",
		logger.String("data_run_id", in.DataRunID),
		logger.Int("features", in.Vectorizer.Dim()),
		logger.Strings("categories", in.Category.Classes()),
		logger.Strings("priorities", in.Priority.Classes()),
	)
	return in, nil
}

// Train fits both heads on the prepared data in the store and persists the
// bundle through it. Training scores and duration are published as metrics.
func Train(ctx context.Context, store *artifact.Store, opts ...training.Option) (*training.Result, error) {
	in, err := store.ReadPrepared(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadDataset, err)
	}

	start := time.Now()
	res, err := training.New(store, opts...).Run(ctx, in)
	metrics.RecordTrainingDuration(time.Since(start))
	if err != nil {
		metrics.RecordErrorByComponent("training", "run")
		return nil, err
	}

	for _, target := range []string{model.TargetCategory, model.TargetPriority} {
		tm := res.Metadata.Target(target)
		metrics.SetTrainingScores(target, tm.Accuracy, tm.MeanConfidence)
		if !tm.Converged {
			metrics.RecordNonConverged(target)
		}
	}
	return res, nil
}
