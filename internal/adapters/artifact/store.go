// Package artifact persists and loads the preprocessing and model artifacts
// as one versioned bundle.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/predict"
	"github.com/okian/triage/internal/domain/training"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/pkg/logger"
)

// Bundle is the loaded, validated set of artifacts.
type Bundle = predict.Bundle

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store reads and writes artifacts under a data directory (vectorizer,
// encoders, features) and a model directory (classifiers, metadata).
type Store struct {
	dataDir  string
	modelDir string
	log      logger.Logger
}

var _ training.ModelWriter = (*Store)(nil)

// New creates a Store.
func New(modelDir, dataDir string, opts ...Option) *Store {
	s := &Store{
		dataDir:  dataDir,
		modelDir: modelDir,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the bundle from modelDir and dataDir.
func Load(ctx context.Context, modelDir, dataDir string, opts ...Option) (*Bundle, error) {
	return New(modelDir, dataDir, opts...).Load(ctx)
}

func (s *Store) dataPath(name string) string  { return filepath.Join(s.dataDir, name) }
func (s *Store) modelPath(name string) string { return filepath.Join(s.modelDir, name) }

// WritePrepared writes the fitted vectorizer, both encoders and the
// vectorized dataset. Every file carries in.DataRunID and the preprocessing
// fingerprint.
func (s *Store) WritePrepared(ctx context.Context, in training.Input) error {
	if in.Vectorizer == nil || !in.Vectorizer.Fitted() || in.Category == nil || in.Priority == nil {
		return fmt.Errorf("write prepared: vectorizer and both encoders are required")
	}
	if in.DataRunID == "" {
		return fmt.Errorf("write prepared: empty data run id")
	}
	fp := fingerprint(in.Vectorizer, in.Category, in.Priority)

	files := []struct {
		name, kind string
		payload    any
	}{
		{VectorizerFile, kindVectorizer, in.Vectorizer.State()},
		{CategoryEncoderFile, kindCategoryEncoder, encoderPayload{Classes: in.Category.Classes()}},
		{PriorityEncoderFile, kindPriorityEncoder, encoderPayload{Classes: in.Priority.Classes()}},
		{FeaturesFile, kindFeatures, in.Dataset},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := encode(f.kind, in.DataRunID, fp, f.payload)
		if err != nil {
			return err
		}
		path := s.dataPath(f.name)
		if err := writeFile(path, data); err != nil {
			return err
		}
		s.log.Debug(ctx, "wrote artifact", logger.String("path", path), logger.Int("bytes", len(data)))
	}
	s.log.Info(ctx, "prepared artifacts saved",
		logger.String("dir", s.dataDir),
		logger.String("data_run_id", in.DataRunID),
		logger.Int("rows", in.Dataset.Len()),
		logger.Int("features", in.Vectorizer.Dim()),
	)
	return nil
}

// ReadPrepared loads what WritePrepared wrote and checks that all four files
// come from the same run.
func (s *Store) ReadPrepared(ctx context.Context) (training.Input, error) {
	v, cat, pri, runID, err := s.readPreprocessing(ctx)
	if err != nil {
		return training.Input{}, err
	}

	var ds training.Dataset
	env, err := readEnvelope(s.dataPath(FeaturesFile), kindFeatures, &ds)
	if err != nil {
		return training.Input{}, err
	}
	if env.RunID != runID {
		return training.Input{}, fmt.Errorf("%w: %s from run %q, preprocessing from run %q",
			ErrBundleMismatch, FeaturesFile, env.RunID, runID)
	}
	if len(ds.YCategory) != ds.Len() || len(ds.YPriority) != ds.Len() {
		return training.Input{}, fmt.Errorf("%w: %s: %d rows, %d/%d labels",
			ErrCorruptArtifact, FeaturesFile, ds.Len(), len(ds.YCategory), len(ds.YPriority))
	}
	for i := range ds.X {
		if ds.X[i].Dim != v.Dim() {
			return training.Input{}, fmt.Errorf("%w: %s row %d has dim %d, vectorizer has %d",
				ErrBundleMismatch, FeaturesFile, i, ds.X[i].Dim, v.Dim())
		}
	}

	return training.Input{
		Dataset:    ds,
		Vectorizer: v,
		Category:   cat,
		Priority:   pri,
		DataRunID:  runID,
	}, nil
}

// WriteModels writes the category model, the priority model and then the
// metadata document. Metadata is written last; a model directory without it
// does not load.
func (s *Store) WriteModels(ctx context.Context, category, priority *classifier.Model, meta model.Metadata) error {
	if category == nil || priority == nil {
		return fmt.Errorf("write models: both models are required")
	}
	info := meta.TrainingInfo
	if info.RunID == "" || info.Fingerprint == "" {
		return fmt.Errorf("write models: metadata lacks run id or fingerprint")
	}

	files := []struct {
		name, kind string
		m          *classifier.Model
	}{
		{CategoryModelFile, kindCategoryModel, category},
		{PriorityModelFile, kindPriorityModel, priority},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := encode(f.kind, info.RunID, info.Fingerprint, f.m)
		if err != nil {
			return err
		}
		if err := writeFile(s.modelPath(f.name), data); err != nil {
			return err
		}
	}

	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFile(s.modelPath(MetadataFile), doc); err != nil {
		return err
	}
	s.log.Info(ctx, "model artifacts saved",
		logger.String("dir", s.modelDir),
		logger.String("run_id", info.RunID),
		logger.String("model_version", info.ModelVersion),
	)
	return nil
}

// ReadMetadata decodes metadata.json only.
func (s *Store) ReadMetadata() (model.Metadata, error) {
	path := s.modelPath(MetadataFile)
	data, err := readFile(path)
	if err != nil {
		return model.Metadata{}, err
	}
	var meta model.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.Metadata{}, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, path, err)
	}
	return meta, nil
}

// Load reads every serving artifact and returns the bundle only if all of
// them are present, decodable and from matching runs.
func (s *Store) Load(ctx context.Context) (*Bundle, error) {
	v, cat, pri, dataRunID, err := s.readPreprocessing(ctx)
	if err != nil {
		return nil, err
	}
	fp := fingerprint(v, cat, pri)

	meta, err := s.ReadMetadata()
	if err != nil {
		return nil, err
	}
	info := meta.TrainingInfo
	if info.Fingerprint != fp {
		return nil, fmt.Errorf("%w: metadata fingerprint %q, preprocessing %q", ErrBundleMismatch, info.Fingerprint, fp)
	}
	if info.DataRunID != "" && info.DataRunID != dataRunID {
		return nil, fmt.Errorf("%w: models trained on data run %q, preprocessing from %q",
			ErrBundleMismatch, info.DataRunID, dataRunID)
	}

	models := make(map[string]*classifier.Model, 2)
	for _, f := range []struct{ name, kind string }{
		{CategoryModelFile, kindCategoryModel},
		{PriorityModelFile, kindPriorityModel},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := new(classifier.Model)
		env, err := readEnvelope(s.modelPath(f.name), f.kind, m)
		if err != nil {
			return nil, err
		}
		if env.RunID != info.RunID {
			return nil, fmt.Errorf("%w: %s from run %q, metadata from run %q", ErrBundleMismatch, f.name, env.RunID, info.RunID)
		}
		if env.Fingerprint != fp {
			return nil, fmt.Errorf("%w: %s fingerprint %q, preprocessing %q", ErrBundleMismatch, f.name, env.Fingerprint, fp)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, f.name, err)
		}
		models[f.kind] = m
	}

	b := &Bundle{
		Vectorizer:      v,
		CategoryEncoder: cat,
		PriorityEncoder: pri,
		CategoryModel:   models[kindCategoryModel],
		PriorityModel:   models[kindPriorityModel],
		Metadata:        meta,
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleMismatch, err)
	}

	s.log.Info(ctx, "artifact bundle loaded",
		logger.String("run_id", info.RunID),
		logger.String("model_version", info.ModelVersion),
		logger.Int("features", v.Dim()),
		logger.Strings("category_classes", cat.Classes()),
		logger.Strings("priority_classes", pri.Classes()),
	)
	return b, nil
}

func (s *Store) readPreprocessing(ctx context.Context) (*vectorize.Vectorizer, *labels.Encoder, *labels.Encoder, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, "", err
	}

	var state vectorize.State
	vEnv, err := readEnvelope(s.dataPath(VectorizerFile), kindVectorizer, &state)
	if err != nil {
		return nil, nil, nil, "", err
	}
	v, err := vectorize.FromState(state)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, VectorizerFile, err)
	}

	encoders := make([]*labels.Encoder, 2)
	for i, f := range []struct{ name, kind string }{
		{CategoryEncoderFile, kindCategoryEncoder},
		{PriorityEncoderFile, kindPriorityEncoder},
	} {
		var p encoderPayload
		env, err := readEnvelope(s.dataPath(f.name), f.kind, &p)
		if err != nil {
			return nil, nil, nil, "", err
		}
		if env.RunID != vEnv.RunID {
			return nil, nil, nil, "", fmt.Errorf("%w: %s from run %q, vectorizer from run %q",
				ErrBundleMismatch, f.name, env.RunID, vEnv.RunID)
		}
		enc, err := labels.FromClasses(p.Classes)
		if err != nil {
			return nil, nil, nil, "", fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, f.name, err)
		}
		encoders[i] = enc
	}

	fp := fingerprint(v, encoders[0], encoders[1])
	if vEnv.Fingerprint != fp {
		return nil, nil, nil, "", fmt.Errorf("%w: recorded fingerprint %q, content %q", ErrCorruptArtifact, vEnv.Fingerprint, fp)
	}
	return v, encoders[0], encoders[1], vEnv.RunID, nil
}

func fingerprint(v *vectorize.Vectorizer, cat, pri *labels.Encoder) string {
	return model.Fingerprint(v.Terms(), v.IDF(), cat.Classes(), pri.Classes())
}

// IsMissing reports whether err means the bundle has not been produced yet.
func IsMissing(err error) bool { return errors.Is(err, ErrMissingArtifact) }
