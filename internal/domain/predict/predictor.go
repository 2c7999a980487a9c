// Package predict serves category and priority predictions from a frozen
// artifact bundle.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/pkg/logger"
)

// Sentinel errors for this package.
var (
	ErrInvalidBundle    = errors.New("invalid artifact bundle")
	ErrInference        = errors.New("inference failed")
	ErrInvalidThreshold = errors.New("confidence threshold outside [0,1]")
	ErrVersionMismatch  = errors.New("model version mismatch")
)

// Defaults.
const (
	DefaultThreshold    = 0.6
	DefaultModelVersion = "1.0.0"
)

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithModelVersion sets the version reported with every prediction.
func WithModelVersion(v string) Option {
	return func(p *Predictor) {
		if v != "" {
			p.version = v
		}
	}
}

// WithStrictVersion makes New fail when the bundle metadata records a
// different version than the configured one.
func WithStrictVersion(strict bool) Option {
	return func(p *Predictor) { p.strict = strict }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.log = l
		}
	}
}

// Predictor answers predictions from one immutable bundle. It holds no
// mutable state and is safe for concurrent use.
type Predictor struct {
	bundle  *Bundle
	version string
	strict  bool
	now     func() time.Time
	log     logger.Logger
}

// New validates the bundle and returns a ready Predictor.
func New(ctx context.Context, b *Bundle, opts ...Option) (*Predictor, error) {
	p := &Predictor{
		version: DefaultModelVersion,
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	p.bundle = b

	if recorded := b.Metadata.TrainingInfo.ModelVersion; recorded != "" && recorded != p.version {
		if p.strict {
			return nil, fmt.Errorf("%w: configured %q, bundle trained as %q", ErrVersionMismatch, p.version, recorded)
		}
		p.log.Warn(ctx, "configured model version differs from bundle metadata",
			logger.String("configured", p.version),
			logger.String("recorded", recorded),
		)
	}
	return p, nil
}

// ModelVersion is the configured version string.
func (p *Predictor) ModelVersion() string { return p.version }

// Predict classifies one request. A label is emitted only when its
// confidence is at least threshold.
func (p *Predictor) Predict(_ context.Context, title, description string, threshold float64) (model.Prediction, error) {
	if err := CheckThreshold(threshold); err != nil {
		return model.Prediction{}, err
	}

	text := model.Request{Title: title, Description: description}.Text()
	vec, err := p.bundle.Vectorizer.Transform(text)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: vectorize: %w", ErrInference, err)
	}

	catLabel, catConf, err := head(vec, p.bundle.CategoryModel, p.bundle.CategoryEncoder, threshold)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %s: %w", ErrInference, model.TargetCategory, err)
	}
	priLabel, priConf, err := head(vec, p.bundle.PriorityModel, p.bundle.PriorityEncoder, threshold)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %s: %w", ErrInference, model.TargetPriority, err)
	}

	return model.Prediction{
		PredictedCategory:  catLabel,
		CategoryConfidence: catConf,
		PredictedPriority:  priLabel,
		PriorityConfidence: priConf,
		ModelVersion:       p.version,
		Timestamp:          model.FormatTimestamp(p.now()),
	}, nil
}

// CheckThreshold reports whether t is a usable confidence threshold.
func CheckThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

// PredictBatch applies Predict to each request in order. The first failure
// aborts the batch and no partial result is returned.
func (p *Predictor) PredictBatch(ctx context.Context, reqs []model.Request, threshold float64) ([]model.Prediction, error) {
	out := make([]model.Prediction, len(reqs))
	for i, r := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pred, err := p.Predict(ctx, r.Title, r.Description, threshold)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

func head(vec vectorize.Vector, m *classifier.Model, enc *labels.Encoder, threshold float64) (*string, float64, error) {
	idx, conf, _, err := m.Predict(vec)
	if err != nil {
		return nil, 0, err
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return nil, 0, fmt.Errorf("%w: confidence %v", classifier.ErrNonFinite, conf)
	}
	if conf < threshold {
		return nil, conf, nil
	}
	label, err := enc.Decode(idx)
	if err != nil {
		return nil, 0, err
	}
	return &label, conf, nil
}

// Info describes the loaded bundle.
type Info struct {
	ModelVersion    string
	CategoryClasses []string
	PriorityClasses []string
	FeatureCount    int
	Metadata        model.Metadata
}

// Info returns a description of the loaded bundle.
func (p *Predictor) Info() Info {
	return Info{
		ModelVersion:    p.version,
		CategoryClasses: p.bundle.CategoryEncoder.Classes(),
		PriorityClasses: p.bundle.PriorityEncoder.Classes(),
		FeatureCount:    p.bundle.Vectorizer.Dim(),
		Metadata:        p.bundle.Metadata,
	}
}
