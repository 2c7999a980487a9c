package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/okian/triage/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// predictRequest mirrors the OpenAPI schema for POST /predict.
type predictRequest struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// batchRequest mirrors the OpenAPI schema for POST /predict/batch. The
// threshold applies to every record.
type batchRequest struct {
	Requests            []predictRequest `json:"requests"`
	ConfidenceThreshold *float64         `json:"confidence_threshold,omitempty"`
}

type batchResponse struct {
	Predictions []model.Prediction `json:"predictions"`
	Count       int                `json:"count"`
}

func (p predictRequest) validate(maxTitle int) error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return errors.New("missing title")
	case utf8.RuneCountInString(p.Title) > maxTitle:
		return fmt.Errorf("title longer than %d characters", maxTitle)
	case strings.TrimSpace(p.Description) == "":
		return errors.New("missing description")
	}
	return nil
}

func threshold(t *float64, def float64) (float64, error) {
	if t == nil {
		return def, nil
	}
	if *t < 0 || *t > 1 {
		return 0, fmt.Errorf("confidence_threshold %v outside [0,1]", *t)
	}
	return *t, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// PredictHandler handles single and batch predictions.
type PredictHandler struct {
	deps   Dependencies
	limits Limits
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies, limits Limits) *PredictHandler {
	return &PredictHandler{deps: deps, limits: limits}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.deps.Ready() {
		writeServiceError(w, op, model.ErrNotReady)
		return
	}

	var req predictRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(h.limits.MaxTitleLength); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	t, err := threshold(req.ConfidenceThreshold, h.limits.DefaultThreshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	pred, err := h.deps.Predict(r.Context(), req.Title, req.Description, t)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// HandlePredictBatch handles POST /predict/batch requests. Any failing
// record fails the whole batch.
func (h *PredictHandler) HandlePredictBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.deps.Ready() {
		writeServiceError(w, op, model.ErrNotReady)
		return
	}

	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if len(req.Requests) > h.limits.MaxBatchSize {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, fmt.Errorf("batch of %d exceeds %d", len(req.Requests), h.limits.MaxBatchSize)))
		return
	}
	t, err := threshold(req.ConfidenceThreshold, h.limits.DefaultThreshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	reqs := make([]model.Request, len(req.Requests))
	for i, pr := range req.Requests {
		if err := pr.validate(h.limits.MaxTitleLength); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, fmt.Errorf("requests[%d]: %w", i, err)))
			return
		}
		reqs[i] = model.Request{Title: pr.Title, Description: pr.Description}
	}

	preds, err := h.deps.PredictBatch(r.Context(), reqs, t)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Predictions: preds, Count: len(preds)})
}

// ModelInfoHandler describes the loaded bundle.
type ModelInfoHandler struct {
	deps Dependencies
}

// NewModelInfoHandler creates a new model info handler.
func NewModelInfoHandler(deps Dependencies) *ModelInfoHandler {
	return &ModelInfoHandler{deps: deps}
}

type modelInfoResponse struct {
	ModelVersion    string               `json:"model_version"`
	CategoryClasses []string             `json:"category_classes"`
	PriorityClasses []string             `json:"priority_classes"`
	FeatureCount    int                  `json:"feature_count"`
	CategoryModel   model.TargetMetadata `json:"category_model"`
	PriorityModel   model.TargetMetadata `json:"priority_model"`
	TrainingInfo    model.TrainingInfo   `json:"training_info"`
}

// HandleModelInfo handles GET /model-info requests.
func (h *ModelInfoHandler) HandleModelInfo(w http.ResponseWriter, r *http.Request) {
	const op = "api.model_info"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	info, err := h.deps.ModelInfo(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, modelInfoResponse{
		ModelVersion:    info.ModelVersion,
		CategoryClasses: info.CategoryClasses,
		PriorityClasses: info.PriorityClasses,
		FeatureCount:    info.FeatureCount,
		CategoryModel:   info.Metadata.CategoryModel,
		PriorityModel:   info.Metadata.PriorityModel,
		TrainingInfo:    info.Metadata.TrainingInfo,
	})
}
