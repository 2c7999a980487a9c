package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/triage/internal/adapters/http/api"
	service "github.com/okian/triage/internal/app"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/predict"
	"github.com/okian/triage/internal/mockdata"
	"github.com/okian/triage/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// Mock implementations for testing
type mockDeps struct {
	ready     bool
	version   string
	predErr   error
	batchErr  error
	info      predict.Info
	threshold float64
	batchLen  int
}

func (m *mockDeps) Ready() bool          { return m.ready }
func (m *mockDeps) ModelVersion() string { return m.version }

func (m *mockDeps) Predict(_ context.Context, title, _ string, threshold float64) (model.Prediction, error) {
	m.threshold = threshold
	if m.predErr != nil {
		return model.Prediction{}, m.predErr
	}
	label := "account"
	return model.Prediction{
		PredictedCategory:  &label,
		CategoryConfidence: 0.9,
		PriorityConfidence: 0.3,
		ModelVersion:       m.version,
		Timestamp:          "2024-03-01T12:00:00.000000Z",
	}, nil
}

func (m *mockDeps) PredictBatch(_ context.Context, reqs []model.Request, threshold float64) ([]model.Prediction, error) {
	m.threshold = threshold
	m.batchLen = len(reqs)
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([]model.Prediction, len(reqs))
	for i, r := range reqs {
		title := r.Title
		out[i] = model.Prediction{PredictedCategory: &title, ModelVersion: m.version}
	}
	return out, nil
}

func (m *mockDeps) ModelInfo(context.Context) (predict.Info, error) {
	if !m.ready {
		return predict.Info{}, model.ErrNotReady
	}
	return m.info, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
	api.NewServer(deps, stats, api.DefaultLimits()).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Info(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := &mockDeps{ready: true, version: "1.0.0"}
		mux := newMux(deps)

		Convey("When requesting the root", func() {
			w := do(mux, http.MethodGet, "/", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(w)
			So(body["service"], ShouldEqual, api.ServiceName)
			So(body["status"], ShouldEqual, "running")

			deps.ready = false
			So(decodeBody(do(mux, http.MethodGet, "/", ""))["status"], ShouldEqual, "models not loaded")
		})

		Convey("When requesting an unknown path", func() {
			So(do(mux, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When checking health", func() {
			w := do(mux, http.MethodGet, "/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w), ShouldResemble, map[string]any{"status": "healthy", "model_version": "1.0.0"})

			deps.ready = false
			w = do(mux, http.MethodGet, "/health", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeBody(w)["code"], ShouldEqual, "service_unavailable")
		})

		Convey("When reading stats and metrics", func() {
			So(do(mux, http.MethodGet, "/stats", "").Code, ShouldEqual, http.StatusOK)
			_ = do(mux, http.MethodGet, "/health", "")

			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "triage_classifier_http_requests_total")
		})

		Convey("When reading model info", func() {
			deps.info = predict.Info{ModelVersion: "1.0.0", CategoryClasses: []string{"account", "billing"}, FeatureCount: 42}
			w := do(mux, http.MethodGet, "/model-info", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(w)
			So(body["feature_count"], ShouldEqual, 42.0)
			So(body["category_classes"], ShouldResemble, []any{"account", "billing"})

			deps.ready = false
			So(do(mux, http.MethodGet, "/model-info", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_Predict(t *testing.T) {
	Convey("Given a ready API", t, func() {
		deps := &mockDeps{ready: true, version: "1.0.0"}
		mux := newMux(deps)

		Convey("When the request is valid without a threshold", func() {
			w := do(mux, http.MethodPost, "/predict", `{"title":"Password reset needed","description":"I can't log into my account"}`)

			Convey("Then the prediction is returned with the default threshold", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.threshold, ShouldEqual, predict.DefaultThreshold)
				body := decodeBody(w)
				So(body["predicted_category"], ShouldEqual, "account")
				v, ok := body["predicted_priority"]
				So(ok, ShouldBeTrue)
				So(v, ShouldBeNil)
				So(body["model_version"], ShouldEqual, "1.0.0")
			})
		})

		Convey("When a threshold of zero is given", func() {
			w := do(mux, http.MethodPost, "/predict", `{"title":"a","description":"b","confidence_threshold":0}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.threshold, ShouldEqual, 0.0)
		})

		Convey("When the request is invalid", func() {
			long := strings.Repeat("é", 501)
			cases := []string{
				`{"title":"   ","description":"b"}`,
				`{"description":"b"}`,
				`{"title":"a"}`,
				`{"title":"a","description":""}`,
				`{"title":"a","description":"b","confidence_threshold":1.5}`,
				`{"title":"a","description":"b","confidence_threshold":-0.1}`,
				fmt.Sprintf(`{"title":%q,"description":"b"}`, long),
				`{"title":`,
			}
			for _, c := range cases {
				w := do(mux, http.MethodPost, "/predict", c)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When the title is exactly at the limit", func() {
			body := fmt.Sprintf(`{"title":%q,"description":"b"}`, strings.Repeat("é", 500))
			So(do(mux, http.MethodPost, "/predict", body).Code, ShouldEqual, http.StatusOK)
		})

		Convey("When inference fails", func() {
			deps.predErr = fmt.Errorf("%w: dimension mismatch", predict.ErrInference)
			w := do(mux, http.MethodPost, "/predict", `{"title":"a","description":"b"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeBody(w)["code"], ShouldEqual, "prediction_failed")
		})

		Convey("When the models are not loaded", func() {
			deps.ready = false
			w := do(mux, http.MethodPost, "/predict", `{"title":"a","description":"b"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeBody(w)["code"], ShouldEqual, "service_unavailable")
		})

		Convey("When the method is wrong", func() {
			So(do(mux, http.MethodGet, "/predict", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_PredictBatch(t *testing.T) {
	Convey("Given a ready API", t, func() {
		deps := &mockDeps{ready: true, version: "1.0.0"}
		mux := newMux(deps)

		Convey("When a valid batch is posted", func() {
			w := do(mux, http.MethodPost, "/predict/batch",
				`{"requests":[{"title":"one","description":"x"},{"title":"two","description":"y"}],"confidence_threshold":0.4}`)

			Convey("Then predictions come back in order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.threshold, ShouldEqual, 0.4)
				body := decodeBody(w)
				So(body["count"], ShouldEqual, 2.0)
				preds := body["predictions"].([]any)
				So(preds[0].(map[string]any)["predicted_category"], ShouldEqual, "one")
				So(preds[1].(map[string]any)["predicted_category"], ShouldEqual, "two")
			})
		})

		Convey("When the batch is empty or too large", func() {
			So(do(mux, http.MethodPost, "/predict/batch", `{"requests":[]}`).Code, ShouldEqual, http.StatusBadRequest)

			var buf bytes.Buffer
			buf.WriteString(`{"requests":[`)
			for i := 0; i < api.DefaultLimits().MaxBatchSize+1; i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				buf.WriteString(`{"title":"t","description":"d"}`)
			}
			buf.WriteString(`]}`)
			So(do(mux, http.MethodPost, "/predict/batch", buf.String()).Code, ShouldEqual, http.StatusBadRequest)
			So(deps.batchLen, ShouldEqual, 0)
		})

		Convey("When one record is invalid", func() {
			w := do(mux, http.MethodPost, "/predict/batch", `{"requests":[{"title":"a","description":"b"},{"title":"","description":"b"}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["message"], ShouldContainSubstring, "requests[1]")
		})

		Convey("When the queue is full", func() {
			deps.batchErr = fmt.Errorf("%w: 3 of 10 records queued", model.ErrBackpressure)
			w := do(mux, http.MethodPost, "/predict/batch", `{"requests":[{"title":"a","description":"b"}]}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeBody(w)["code"], ShouldEqual, "backpressure")
		})

		Convey("When a record fails inference", func() {
			deps.batchErr = fmt.Errorf("record 0: %w", predict.ErrInference)
			w := do(mux, http.MethodPost, "/predict/batch", `{"requests":[{"title":"a","description":"b"}]}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decodeBody(w)
			So(body["code"], ShouldEqual, "prediction_failed")
			So(body, ShouldNotContainKey, "predictions")
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.predict", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.predict: bad request: boom")
		So(api.WrapKind("op", api.ErrBadRequest, nil), ShouldBeNil)
		So(api.NewKind("op", api.ErrNotReady).Error(), ShouldEqual, "op: models not loaded")

		wrapped := api.Wrap("outer", err)
		So(errors.Is(wrapped, api.ErrBadRequest), ShouldBeTrue)
		So(api.Wrap("op", nil), ShouldBeNil)
	})
}

func TestServer_WithService(t *testing.T) {
	Convey("Given the API over a service with a trained bundle", t, func() {
		ctx := context.Background()
		f, err := mockdata.TrainFixture(ctx, 200, 5)
		So(err, ShouldBeNil)

		svc := service.New(
			service.WithBundle(f.Bundle),
			service.WithClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc)

		Convey("When predicting the password reset request", func() {
			w := do(mux, http.MethodPost, "/predict", `{"title":"Password reset needed","description":"I can't log into my account","confidence_threshold":0.6}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var pred model.Prediction
			So(json.Unmarshal(w.Body.Bytes(), &pred), ShouldBeNil)

			Convey("Then labels are present only at or above the threshold", func() {
				So(pred.CategoryConfidence, ShouldBeBetweenOrEqual, 0.0, 1.0)
				So(pred.PredictedCategory != nil, ShouldEqual, pred.CategoryConfidence >= 0.6)
				So(pred.PredictedPriority != nil, ShouldEqual, pred.PriorityConfidence >= 0.6)
				So(pred.Timestamp, ShouldEqual, "2024-03-01T12:00:00.000000Z")
			})
		})

		Convey("When posting a batch", func() {
			w := do(mux, http.MethodPost, "/predict/batch",
				`{"requests":[{"title":"Invoice wrong","description":"charged twice"},{"title":"VPN down","description":"cannot connect"}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["count"], ShouldEqual, 2.0)
		})
	})
}
