// Package metrics provides Prometheus metrics for the triage service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// confidenceBuckets covers the [0,1] probability range.
var confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1}

// Manager manages all Prometheus metrics for the triage service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Inference
	predictions          *prometheus.CounterVec
	predictionConfidence *prometheus.HistogramVec
	inferenceLatency     prometheus.Histogram
	inferenceErrors      prometheus.Counter
	batchSize            prometheus.Histogram

	// Loaded bundle
	modelReady    prometheus.Gauge
	modelInfo     *prometheus.GaugeVec
	labelSpace    *prometheus.GaugeVec
	featureCount  prometheus.Gauge
	bundleLoadErr *prometheus.CounterVec

	// Training
	trainingDuration prometheus.Histogram
	trainingAccuracy *prometheus.GaugeVec
	trainingMeanConf *prometheus.GaugeVec
	trainingNonConv  *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Batch queue and worker pool
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueueRate        prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "triage",
		subsystem:        "classifier",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "predictions_total",
		Help:        "Predictions by target and outcome (labeled or abstained below threshold)",
		ConstLabels: constLabels,
	}, []string{"target", "outcome"})

	m.predictionConfidence = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "prediction_confidence",
		Help:        "Distribution of max class probability per target",
		Buckets:     confidenceBuckets,
		ConstLabels: constLabels,
	}, []string{"target"})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "inference_latency_milliseconds",
		Help:        "Latency of a single-record prediction in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.inferenceErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "inference_errors_total",
		Help:        "Total number of failed predictions",
		ConstLabels: constLabels,
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_size",
		Help:        "Number of records per batch prediction call",
		Buckets:     []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		ConstLabels: constLabels,
	})

	m.modelReady = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_ready",
		Help:        "1 when a model bundle is loaded and serving, 0 otherwise",
		ConstLabels: constLabels,
	})

	m.modelInfo = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_info",
		Help:        "Identifies the loaded bundle; value is always 1",
		ConstLabels: constLabels,
	}, []string{"model_version", "run_id"})

	m.labelSpace = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "label_space_size",
		Help:        "Number of classes per target in the loaded bundle",
		ConstLabels: constLabels,
	}, []string{"target"})

	m.featureCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "feature_count",
		Help:        "Vectorizer vocabulary size of the loaded bundle",
		ConstLabels: constLabels,
	})

	m.bundleLoadErr = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "bundle_load_errors_total",
		Help:        "Bundle load failures by kind",
		ConstLabels: constLabels,
	}, []string{"kind"})

	m.trainingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_duration_milliseconds",
		Help:        "Wall time of a full training run in milliseconds",
		Buckets:     prometheus.ExponentialBuckets(10, 4, 8),
		ConstLabels: constLabels,
	})

	m.trainingAccuracy = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_accuracy_ratio",
		Help:        "Held-out accuracy of the last training run per target",
		ConstLabels: constLabels,
	}, []string{"target"})

	m.trainingMeanConf = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_mean_confidence_ratio",
		Help:        "Held-out mean max probability of the last training run per target",
		ConstLabels: constLabels,
	}, []string{"target"})

	m.trainingNonConv = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_nonconverged_total",
		Help:        "Classifier fits that hit the iteration limit before converging",
		ConstLabels: constLabels,
	}, []string{"target"})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_queue_size",
		Help:        "Current number of queued batch tasks",
		ConstLabels: constLabels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_queue_capacity",
		Help:        "Maximum batch queue capacity",
		ConstLabels: constLabels,
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_queue_enqueue_total",
		Help:        "Total number of batch tasks enqueued",
		ConstLabels: constLabels,
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_queue_enqueue_errors_total",
		Help:        "Total number of rejected batch tasks (closed or full queue)",
		ConstLabels: constLabels,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_active_count",
		Help:        "Number of running batch workers",
		ConstLabels: constLabels,
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_processing_latency_milliseconds",
		Help:        "Batch worker task latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_errors_total",
		Help:        "Total number of batch tasks that returned an error",
		ConstLabels: constLabels,
	})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total number of errors by type",
			ConstLabels: constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})
}

// Inference.

// RecordPrediction records one target's outcome and confidence.
func RecordPrediction(target string, labeled bool, confidence float64) {
	if !globalManager.enabled {
		return
	}
	outcome := "abstained"
	if labeled {
		outcome = "labeled"
	}
	globalManager.predictions.WithLabelValues(target, outcome).Inc()
	globalManager.predictionConfidence.WithLabelValues(target).Observe(confidence)
}

// RecordInferenceLatency records single-record inference latency in milliseconds.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordInferenceError increments the inference error counter.
func RecordInferenceError() {
	globalManager.inferenceErrors.Inc()
}

// RecordBatchSize records the size of a batch prediction call.
func RecordBatchSize(n int) {
	globalManager.batchSize.Observe(float64(n))
}

// Loaded bundle.

// SetModelReady flips the readiness gauge.
func SetModelReady(ready bool) {
	if ready {
		globalManager.modelReady.Set(1)
		return
	}
	globalManager.modelReady.Set(0)
}

// SetModelInfo publishes the identity and shape of the loaded bundle.
func SetModelInfo(version, runID string, categoryClasses, priorityClasses, features int) {
	globalManager.modelInfo.Reset()
	globalManager.modelInfo.WithLabelValues(version, runID).Set(1)
	globalManager.labelSpace.WithLabelValues("category").Set(float64(categoryClasses))
	globalManager.labelSpace.WithLabelValues("priority").Set(float64(priorityClasses))
	globalManager.featureCount.Set(float64(features))
}

// RecordBundleLoadError counts a bundle load failure by kind.
func RecordBundleLoadError(kind string) {
	globalManager.bundleLoadErr.WithLabelValues(kind).Inc()
}

// Training.

// RecordTrainingDuration records the wall time of a training run.
func RecordTrainingDuration(d time.Duration) {
	globalManager.trainingDuration.Observe(float64(d.Milliseconds()))
}

// SetTrainingScores publishes held-out scores for a target.
func SetTrainingScores(target string, accuracy, meanConfidence float64) {
	globalManager.trainingAccuracy.WithLabelValues(target).Set(accuracy)
	globalManager.trainingMeanConf.WithLabelValues(target).Set(meanConfidence)
}

// RecordNonConverged counts a fit that stopped at its iteration limit.
func RecordNonConverged(target string) {
	globalManager.trainingNonConv.WithLabelValues(target).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
