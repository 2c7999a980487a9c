package api

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/triage/pkg/metrics"
)

// HealthHandler reports whether the service can answer predictions.
type HealthHandler struct {
	deps Dependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version"`
}

// HandleHealth handles GET /health requests: 200 with the model version
// once a bundle is loaded, 503 before.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	const op = "api.health"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if !h.deps.Ready() {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable",
			WrapKind(op, ErrNotReady, errors.New("please train models first")))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", ModelVersion: h.deps.ModelVersion()})
}

// MetricsHandler serves the service registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
