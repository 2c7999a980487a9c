// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/predict"
)

// ServiceName is reported by GET /.
const ServiceName = "Request Management DS Model API"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ready reports whether a model bundle is loaded.
	Ready() bool
	// ModelVersion is the configured version string.
	ModelVersion() string

	Predict(ctx context.Context, title, description string, threshold float64) (model.Prediction, error)
	PredictBatch(ctx context.Context, reqs []model.Request, threshold float64) ([]model.Prediction, error)
	ModelInfo(ctx context.Context) (predict.Info, error)
}

// Limits bounds what a request may carry.
type Limits struct {
	DefaultThreshold float64
	MaxTitleLength   int
	MaxBatchSize     int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		DefaultThreshold: predict.DefaultThreshold,
		MaxTitleLength:   500,
		MaxBatchSize:     100,
	}
}

// Server wires HTTP routes for the prediction API.
type Server struct {
	rootHandler      *RootHandler
	healthHandler    *HealthHandler
	metricsHandler   http.Handler
	statsHandler     *StatsHandler
	predictHandler   *PredictHandler
	modelInfoHandler *ModelInfoHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, limits Limits) *Server {
	return &Server{
		rootHandler:      NewRootHandler(deps),
		healthHandler:    NewHealthHandler(deps),
		metricsHandler:   MetricsHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		predictHandler:   NewPredictHandler(deps, limits),
		modelInfoHandler: NewModelInfoHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.Handle("/metrics", s.metricsHandler)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/predict/batch", MetricsMiddleware(s.predictHandler.HandlePredictBatch, "predict_batch"))
	mux.HandleFunc("/model-info", MetricsMiddleware(s.modelInfoHandler.HandleModelInfo, "model_info"))
	mux.HandleFunc("/", MetricsMiddleware(s.rootHandler.HandleRoot, "root"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps an error from Dependencies to a response.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable",
			WrapKind(op, ErrNotReady, errors.New("please train models first")))
	case errors.Is(err, model.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, predict.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "timeout", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "prediction_failed", WrapKind(op, ErrPrediction, err))
	}
}

// RootHandler describes the service.
type RootHandler struct {
	deps Dependencies
}

// NewRootHandler creates a new root handler.
func NewRootHandler(deps Dependencies) *RootHandler {
	return &RootHandler{deps: deps}
}

type rootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

// HandleRoot handles GET / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	status := "running"
	if !h.deps.Ready() {
		status = "models not loaded"
	}
	writeJSON(w, http.StatusOK, rootResponse{
		Service: ServiceName,
		Version: h.deps.ModelVersion(),
		Status:  status,
		Endpoints: map[string]string{
			"predict":       "/predict",
			"predict_batch": "/predict/batch",
			"health":        "/health",
			"model_info":    "/model-info",
			"docs":          "/docs",
		},
	})
}
