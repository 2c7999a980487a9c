// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys; the same names are used in YAML files and, upper-cased
//   with the TRIAGE_ prefix, in the environment.
// - New() returns defaults; Load layers file, .env and environment on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration shared by the CLI subcommands.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8001".
	Addr string `koanf:"addr"`

	// ModelDir holds category_model, priority_model and metadata.json.
	ModelDir string `koanf:"model_dir"`

	// DataDir holds the vectorizer, the encoders and the prepared features.
	DataDir string `koanf:"data_dir"`

	// ModelVersion is reported with every prediction.
	ModelVersion string `koanf:"model_version"`

	// ConfidenceThreshold is used when a request does not carry its own.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// StrictModelVersion refuses to serve a bundle whose recorded version
	// differs from ModelVersion.
	StrictModelVersion bool `koanf:"strict_model_version"`

	// BatchWorkers and BatchQueueSize size the batch prediction pool.
	BatchWorkers   int `koanf:"batch_workers"`
	BatchQueueSize int `koanf:"batch_queue_size"`

	// MaxBatchSize caps POST /predict/batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxTitleLength caps the request title in runes.
	MaxTitleLength int `koanf:"max_title_length"`

	// Training.
	TestSize       float64 `koanf:"test_size"`
	RandomState    int64   `koanf:"random_state"`
	MaxIter        int     `koanf:"max_iter"`
	Tolerance      float64 `koanf:"tolerance"`
	Regularization float64 `koanf:"regularization"`

	// Vectorizer.
	MaxFeatures int     `koanf:"max_features"`
	MinDF       int     `koanf:"min_df"`
	MaxDF       float64 `koanf:"max_df"`
	NgramMin    int     `koanf:"ngram_min"`
	NgramMax    int     `koanf:"ngram_max"`

	// BackendAPIURL and BackendAPIKey locate the request backend used by
	// `prepare --source api`.
	BackendAPIURL string `koanf:"backend_api_url"`
	BackendAPIKey string `koanf:"backend_api_key"`

	// RecordsSelector is a jq expression picking the record array out of
	// JSON and YAML corpora and backend responses.
	RecordsSelector string `koanf:"records_selector"`

	// Metrics exported by `serve` on /metrics. Names are
	// <metrics_namespace>_<metrics_subsystem>_<name>; MetricsLabels become
	// constant labels on every series.
	MetricsEnabled         bool              `koanf:"metrics_enabled"`
	MetricsNamespace       string            `koanf:"metrics_namespace"`
	MetricsSubsystem       string            `koanf:"metrics_subsystem"`
	MetricsLabels          map[string]string `koanf:"metrics_labels"`
	MetricsLatencyBuckets  []float64         `koanf:"metrics_latency_buckets"`
	MetricsRefreshInterval time.Duration     `koanf:"metrics_refresh_interval"`
}

// New creates a Config populated with defaults.
func New() *Config {
	workers := runtime.NumCPU()
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8001",
		ModelDir:            "models",
		DataDir:             "data/processed",
		ModelVersion:        "1.0.0",
		ConfidenceThreshold: 0.6,
		BatchWorkers:        workers,
		BatchQueueSize:      1024,
		MaxBatchSize:        100,
		MaxTitleLength:      500,
		TestSize:            0.2,
		RandomState:         42,
		MaxIter:             1000,
		Tolerance:           1e-4,
		Regularization:      1.0,
		MaxFeatures:         5000,
		MinDF:               1,
		MaxDF:               1.0,
		NgramMin:            1,
		NgramMax:            2,
		BackendAPIURL:       "http://localhost:3000",
		RecordsSelector:     ".",

		MetricsEnabled:         true,
		MetricsNamespace:       "triage",
		MetricsSubsystem:       "classifier",
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.LogFormat == "text" || c.LogFormat == "json", "log_format must be text or json")
	check(c.ModelDir != "", "model_dir must not be empty")
	check(c.DataDir != "", "data_dir must not be empty")
	check(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1, "confidence_threshold must be in [0,1]")
	check(c.BatchWorkers > 0, "batch_workers must be positive")
	check(c.BatchQueueSize > 0, "batch_queue_size must be positive")
	check(c.MaxBatchSize > 0, "max_batch_size must be positive")
	check(c.MaxBatchSize <= c.BatchQueueSize, "max_batch_size must not exceed batch_queue_size")
	check(c.MaxTitleLength > 0, "max_title_length must be positive")
	check(c.TestSize > 0 && c.TestSize < 1, "test_size must be in (0,1)")
	check(c.MaxIter > 0, "max_iter must be positive")
	check(c.Tolerance > 0, "tolerance must be positive")
	check(c.Regularization > 0, "regularization must be positive")
	check(c.MaxFeatures >= 0, "max_features must not be negative")
	check(c.MinDF >= 1, "min_df must be at least 1")
	check(c.MaxDF > 0 && c.MaxDF <= 1, "max_df must be in (0,1]")
	check(c.NgramMin >= 1 && c.NgramMax >= c.NgramMin, "ngram range must satisfy 1 <= ngram_min <= ngram_max")

	check(c.MetricsNamespace != "", "metrics_namespace must not be empty")
	check(c.MetricsRefreshInterval > 0, "metrics_refresh_interval must be positive")
	check(sortedPositive(c.MetricsLatencyBuckets), "metrics_latency_buckets must be positive and increasing")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func sortedPositive(buckets []float64) bool {
	for i, b := range buckets {
		if b <= 0 || (i > 0 && b <= buckets[i-1]) {
			return false
		}
	}
	return true
}
