// Package service owns the loaded artifact bundle and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/triage/internal/adapters/artifact"
	"github.com/okian/triage/internal/adapters/mq/queue"
	"github.com/okian/triage/internal/adapters/mq/worker"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/predict"
	"github.com/okian/triage/pkg/logger"
	"github.com/okian/triage/pkg/metrics"
)

// Service serves predictions from one bundle for its whole lifetime. A
// bundle that fails to load leaves the service running but not ready; the
// load is not retried.
type Service struct {
	mu sync.RWMutex

	// Core components
	predictor *predict.Predictor
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	stopPool  context.CancelFunc

	// Configuration
	workerCount   int
	queueSize     int
	modelDir      string
	dataDir       string
	modelVersion  string
	strictVersion bool
	bundle        *predict.Bundle
	now           func() time.Time

	// State
	started   bool
	startedAt time.Time
	loadErr   error

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the batch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArtifactDirs sets where the bundle is loaded from.
func WithArtifactDirs(modelDir, dataDir string) Option {
	return func(s *Service) {
		if modelDir != "" {
			s.modelDir = modelDir
		}
		if dataDir != "" {
			s.dataDir = dataDir
		}
	}
}

// WithModelVersion sets the version reported with every prediction.
func WithModelVersion(v string) Option {
	return func(s *Service) {
		if v != "" {
			s.modelVersion = v
		}
	}
}

// WithStrictModelVersion refuses a bundle trained under another version.
func WithStrictModelVersion(strict bool) Option {
	return func(s *Service) { s.strictVersion = strict }
}

// WithBundle serves b instead of loading one from disk.
func WithBundle(b *predict.Bundle) Option {
	return func(s *Service) { s.bundle = b }
}

// WithClock overrides the prediction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// DefaultQueueSize is the batch queue capacity unless WithQueueSize is given.
const DefaultQueueSize = 1024

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    DefaultQueueSize,
		modelDir:     "models",
		dataDir:      "data/processed",
		modelVersion: predict.DefaultModelVersion,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the bundle and starts the batch workers. A load failure is
// logged and recorded; Start still succeeds and the service reports not ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting triage service...",
		logger.String("model_dir", s.modelDir),
		logger.String("data_dir", s.dataDir),
	)

	p, err := s.load(ctx)
	if err != nil {
		s.loadErr = err
		metrics.SetModelReady(false)
		metrics.RecordBundleLoadError(loadErrorKind(err))
		metrics.RecordErrorByComponent("service", "bundle_load")
		s.logger.Error(ctx, "model bundle unavailable, serving without predictions", logger.Error(err))
	} else {
		s.predictor = p
		info := p.Info()
		metrics.SetModelInfo(info.ModelVersion, info.Metadata.TrainingInfo.RunID,
			len(info.CategoryClasses), len(info.PriorityClasses), info.FeatureCount)
		metrics.SetModelReady(true)

		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.pool = worker.NewPool(s.workerCount, s.queue, p)
		// Workers outlive the caller's context; only Stop ends them.
		poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopPool = cancel
		s.pool.Start(poolCtx)
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "triage service started",
		logger.Bool("ready", s.predictor != nil),
		logger.String("model_version", s.modelVersion),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

func (s *Service) load(ctx context.Context) (*predict.Predictor, error) {
	b := s.bundle
	if b == nil {
		var err error
		b, err = artifact.Load(ctx, s.modelDir, s.dataDir, artifact.WithLogger(s.logger.Named("artifact")))
		if err != nil {
			return nil, err
		}
	}
	return predict.New(ctx, b,
		predict.WithModelVersion(s.modelVersion),
		predict.WithStrictVersion(s.strictVersion),
		predict.WithClock(s.now),
		predict.WithLogger(s.logger.Named("predict")),
	)
}

func loadErrorKind(err error) string {
	switch {
	case errors.Is(err, artifact.ErrMissingArtifact):
		return "missing"
	case errors.Is(err, artifact.ErrCorruptArtifact):
		return "corrupt"
	case errors.Is(err, artifact.ErrBundleMismatch):
		return "mismatch"
	case errors.Is(err, predict.ErrVersionMismatch):
		return "version"
	case errors.Is(err, predict.ErrInvalidBundle):
		return "invalid"
	default:
		return "other"
	}
}

// Stop drains the batch workers. The loaded bundle is kept.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping triage service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
		s.stopPool()
		s.stopPool = nil
		s.pool = nil
		s.queue = nil
	}

	s.started = false
	s.logger.Info(ctx, "triage service stopped")
}

// Ready reports whether a bundle is loaded.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predictor != nil
}

// LoadError is the reason the service is not ready, if any.
func (s *Service) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// ModelVersion is the configured version string.
func (s *Service) ModelVersion() string {
	return s.modelVersion
}

// Predict classifies one request.
func (s *Service) Predict(ctx context.Context, title, description string, threshold float64) (model.Prediction, error) {
	s.mu.RLock()
	p := s.predictor
	s.mu.RUnlock()
	if p == nil {
		return model.Prediction{}, model.ErrNotReady
	}

	start := time.Now()
	pred, err := p.Predict(ctx, title, description, threshold)
	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		if errors.Is(err, predict.ErrInference) {
			metrics.RecordInferenceError()
		}
		return model.Prediction{}, err
	}
	observe(pred)
	return pred, nil
}

// PredictBatch classifies reqs on the worker pool. The output is in input
// order and equal to running Predict on each record. The first failure
// aborts the batch and no partial result is returned. Records wait for queue
// room until ctx ends; a stopped service yields model.ErrBackpressure.
func (s *Service) PredictBatch(ctx context.Context, reqs []model.Request, threshold float64) ([]model.Prediction, error) {
	s.mu.RLock()
	p, q := s.predictor, s.queue
	s.mu.RUnlock()
	if p == nil {
		return nil, model.ErrNotReady
	}
	if q == nil {
		return nil, fmt.Errorf("%w: service stopped", model.ErrBackpressure)
	}
	if err := predict.CheckThreshold(threshold); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.RecordBatchSize(len(reqs))
	if len(reqs) == 0 {
		return []model.Prediction{}, nil
	}

	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One slot per record so workers never block on delivery, even after
	// the caller has given up.
	done := make(chan queue.Result, len(reqs))
	for i, r := range reqs {
		err := q.EnqueueWait(jctx, queue.Job{Ctx: jctx, Index: i, Request: r, Threshold: threshold, Done: done})
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrStopped):
			return nil, fmt.Errorf("%w: service stopped after %d of %d records queued", model.ErrBackpressure, i, len(reqs))
		default:
			return nil, err
		}
	}

	out := make([]model.Prediction, len(reqs))
	for range reqs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-done:
			if r.Err != nil {
				if errors.Is(r.Err, predict.ErrInference) {
					metrics.RecordInferenceError()
				}
				return nil, fmt.Errorf("record %d: %w", r.Index, r.Err)
			}
			out[r.Index] = r.Prediction
		}
	}
	for _, pred := range out {
		observe(pred)
	}
	return out, nil
}

func observe(p model.Prediction) { //nolint:gocritic // hugeParam: read-only copy
	metrics.RecordPrediction(model.TargetCategory, p.PredictedCategory != nil, p.CategoryConfidence)
	metrics.RecordPrediction(model.TargetPriority, p.PredictedPriority != nil, p.PriorityConfidence)
}

// ModelInfo describes the loaded bundle.
func (s *Service) ModelInfo(_ context.Context) (predict.Info, error) {
	s.mu.RLock()
	p := s.predictor
	s.mu.RUnlock()
	if p == nil {
		return predict.Info{}, model.ErrNotReady
	}
	return p.Info(), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"ready":        s.predictor != nil,
		"modelVersion": s.modelVersion,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
	}

	if s.started {
		stats["uptimeSeconds"] = s.now().Sub(s.startedAt).Seconds()
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["queueCapacity"] = s.queue.Capacity()
	}
	if s.loadErr != nil {
		stats["loadError"] = s.loadErr.Error()
	}
	if totals, err := metrics.Totals("predictions_total"); err == nil {
		stats["predictions"] = totals
	}

	return stats
}
