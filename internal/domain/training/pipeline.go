// Package training fits the category and priority classifiers on a prepared
// dataset, evaluates them on a held-out split and hands the result to a store.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/pkg/logger"
)

// Defaults.
const (
	DefaultTestSize    = 0.2
	DefaultRandomState = 42
)

// Stages reported to the progress callback, in order.
const (
	StageSplit    = "split"
	StageFit      = "fit"
	StageEvaluate = "evaluate"
	StagePersist  = "persist"
)

// Dataset is a vectorized corpus with encoded labels for both heads.
type Dataset struct {
	X         []vectorize.Vector `msgpack:"x"`
	YCategory []int              `msgpack:"y_category"`
	YPriority []int              `msgpack:"y_priority"`
}

// Len is the number of rows.
func (d Dataset) Len() int { return len(d.X) }

// Input bundles the dataset with the fitted preprocessing it was built from.
type Input struct {
	Dataset    Dataset
	Vectorizer *vectorize.Vectorizer
	Category   *labels.Encoder
	Priority   *labels.Encoder
	// DataRunID identifies the prepare run that produced the inputs.
	DataRunID string
}

// ModelWriter persists a trained pair of models with their metadata.
type ModelWriter interface {
	WriteModels(ctx context.Context, category, priority *classifier.Model, meta model.Metadata) error
}

// Result is the outcome of a successful run.
type Result struct {
	CategoryModel *classifier.Model
	PriorityModel *classifier.Model
	Category      Evaluation
	Priority      Evaluation
	Metadata      model.Metadata
	Split         Split
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithTestSize sets the held-out fraction.
func WithTestSize(f float64) Option {
	return func(p *Pipeline) { p.testSize = f }
}

// WithRandomState seeds the split.
func WithRandomState(seed int64) Option {
	return func(p *Pipeline) { p.randomState = seed }
}

// WithClassifierOptions forwards options to both classifier fits.
func WithClassifierOptions(opts ...classifier.Option) Option {
	return func(p *Pipeline) { p.fitOpts = append(p.fitOpts, opts...) }
}

// WithModelVersion records the version string in metadata.
func WithModelVersion(v string) Option {
	return func(p *Pipeline) { p.modelVersion = v }
}

// WithLogger sets the logger used for warnings such as non-convergence.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides the time source for trained_at.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProgress registers a callback invoked at the start of each stage.
func WithProgress(fn func(stage string)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline runs split, fit, evaluate and persist.
type Pipeline struct {
	writer       ModelWriter
	testSize     float64
	randomState  int64
	fitOpts      []classifier.Option
	modelVersion string
	log          logger.Logger
	now          func() time.Time
	progress     func(stage string)
}

// New creates a Pipeline that hands its models to writer. A nil writer
// skips persistence.
func New(writer ModelWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		writer:      writer,
		testSize:    DefaultTestSize,
		randomState: DefaultRandomState,
		log:         logger.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) stage(name string) {
	if p.progress != nil {
		p.progress(name)
	}
}

// Run trains both heads. Nothing is written unless every step before
// persistence succeeded.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	ds := in.Dataset

	p.stage(StageSplit)
	split, err := StratifiedSplit(ds.YCategory, p.testSize, p.randomState)
	if err != nil {
		return nil, err
	}
	trainX, trainCat := pick(ds.X, ds.YCategory, split.Train)
	_, trainPri := pick(ds.X, ds.YPriority, split.Train)
	testX, testCat := pick(ds.X, ds.YCategory, split.Test)
	_, testPri := pick(ds.X, ds.YPriority, split.Test)

	p.stage(StageFit)
	var catModel, priModel *classifier.Model
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := p.fit(gctx, model.TargetCategory, trainX, trainCat, in.Category.Len())
		catModel = m
		return err
	})
	g.Go(func() error {
		m, err := p.fit(gctx, model.TargetPriority, trainX, trainPri, in.Priority.Len())
		priModel = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.stage(StageEvaluate)
	catEval, err := Evaluate(catModel, testX, testCat, in.Category.Classes())
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", model.TargetCategory, err)
	}
	priEval, err := Evaluate(priModel, testX, testPri, in.Priority.Classes())
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", model.TargetPriority, err)
	}

	meta := model.Metadata{
		CategoryModel: targetMetadata(catModel, catEval, in.Category.Classes()),
		PriorityModel: targetMetadata(priModel, priEval, in.Priority.Classes()),
		TrainingInfo: model.TrainingInfo{
			NTrainSamples: len(split.Train),
			NTestSamples:  len(split.Test),
			TestSize:      p.testSize,
			RandomState:   p.randomState,
			TrainedAt:     model.FormatTimestamp(p.now()),
			RunID:         uuid.NewString(),
			DataRunID:     in.DataRunID,
			ModelVersion:  p.modelVersion,
			Fingerprint: model.Fingerprint(in.Vectorizer.Terms(), in.Vectorizer.IDF(),
				in.Category.Classes(), in.Priority.Classes()),
			NFeatures: in.Vectorizer.Dim(),
		},
	}

	if p.writer != nil {
		p.stage(StagePersist)
		if err := p.writer.WriteModels(ctx, catModel, priModel, meta); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	return &Result{
		CategoryModel: catModel,
		PriorityModel: priModel,
		Category:      catEval,
		Priority:      priEval,
		Metadata:      meta,
		Split:         split,
	}, nil
}

func (p *Pipeline) fit(ctx context.Context, target string, X []vectorize.Vector, y []int, classes int) (*classifier.Model, error) {
	m, err := classifier.Fit(ctx, X, y, classes, p.fitOpts...)
	switch {
	case errors.Is(err, classifier.ErrEmptyClass), errors.Is(err, classifier.ErrInvalidInput):
		return nil, fmt.Errorf("%w: %s: %w", ErrConfiguration, target, err)
	case err != nil:
		return nil, fmt.Errorf("fit %s: %w", target, err)
	}
	if !m.Converged {
		p.log.Warn(ctx, "classifier did not converge; increase max_iter",
			logger.String("target", target),
			logger.Int("n_iter", m.NIter),
		)
	}
	return m, nil
}

func validateInput(in Input) error {
	if in.Vectorizer == nil || !in.Vectorizer.Fitted() || in.Category == nil || in.Priority == nil {
		return fmt.Errorf("%w: vectorizer and both encoders are required", ErrConfiguration)
	}
	ds := in.Dataset
	n := ds.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty dataset", ErrConfiguration)
	}
	if len(ds.YCategory) != n || len(ds.YPriority) != n {
		return fmt.Errorf("%w: %d rows but %d category and %d priority labels",
			ErrConfiguration, n, len(ds.YCategory), len(ds.YPriority))
	}
	for name, enc := range map[string]*labels.Encoder{model.TargetCategory: in.Category, model.TargetPriority: in.Priority} {
		if enc.Len() < 2 {
			return fmt.Errorf("%w: %s has %d class, need at least 2", ErrConfiguration, name, enc.Len())
		}
	}
	dim := in.Vectorizer.Dim()
	for i := range ds.X {
		if ds.X[i].Dim != dim {
			return fmt.Errorf("%w: row %d has dim %d, vectorizer has %d", ErrConfiguration, i, ds.X[i].Dim, dim)
		}
		if ds.YCategory[i] < 0 || ds.YCategory[i] >= in.Category.Len() ||
			ds.YPriority[i] < 0 || ds.YPriority[i] >= in.Priority.Len() {
			return fmt.Errorf("%w: row %d has a label outside the label space", ErrConfiguration, i)
		}
	}
	return nil
}

func pick(X []vectorize.Vector, y []int, rows []int) ([]vectorize.Vector, []int) {
	outX := make([]vectorize.Vector, len(rows))
	outY := make([]int, len(rows))
	for i, r := range rows {
		outX[i] = X[r]
		outY[i] = y[r]
	}
	return outX, outY
}

func targetMetadata(m *classifier.Model, ev Evaluation, classes []string) model.TargetMetadata {
	return model.TargetMetadata{
		Type:           model.ClassifierType,
		Accuracy:       ev.Accuracy,
		MeanConfidence: ev.MeanConfidence,
		Classes:        classes,
		Converged:      m.Converged,
		NIter:          m.NIter,
		PerClass:       ev.PerClass,
	}
}
