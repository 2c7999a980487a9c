package training_test

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/training"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/internal/mockdata"
	"github.com/okian/triage/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

// recordingWriter captures what the pipeline hands to the store.
type recordingWriter struct {
	calls    int
	category *classifier.Model
	priority *classifier.Model
	meta     model.Metadata
	err      error
}

func (w *recordingWriter) WriteModels(_ context.Context, c, p *classifier.Model, meta model.Metadata) error {
	w.calls++
	w.category, w.priority, w.meta = c, p, meta
	return w.err
}

func buildInput(n int) training.Input {
	reqs, err := mockdata.New(mockdata.WithSeed(11), mockdata.WithWorkers(2)).Generate(context.Background(), n)
	if err != nil {
		panic(err)
	}
	recs := mockdata.Records(reqs)

	docs := make([]string, len(recs))
	cats := make([]string, len(recs))
	pris := make([]string, len(recs))
	for i, r := range recs {
		docs[i] = r.Request().Text()
		cats[i] = r.Category
		pris[i] = r.Priority
	}

	v := vectorize.New()
	if err := v.Fit(docs); err != nil {
		panic(err)
	}
	X, err := v.TransformAll(docs)
	if err != nil {
		panic(err)
	}
	catEnc, _ := labels.Fit(cats)
	priEnc, _ := labels.Fit(pris)
	yc, _ := catEnc.EncodeAll(cats)
	yp, _ := priEnc.EncodeAll(pris)

	return training.Input{
		Dataset:    training.Dataset{X: X, YCategory: yc, YPriority: yp},
		Vectorizer: v,
		Category:   catEnc,
		Priority:   priEnc,
		DataRunID:  "data-run",
	}
}

func TestStratifiedSplit(t *testing.T) {
	convey.Convey("Given labels with uneven classes", t, func() {
		y := make([]int, 0, 100)
		for i := 0; i < 60; i++ {
			y = append(y, 0)
		}
		for i := 0; i < 30; i++ {
			y = append(y, 1)
		}
		for i := 0; i < 10; i++ {
			y = append(y, 2)
		}

		convey.Convey("When splitting with test_size 0.25", func() {
			s, err := training.StratifiedSplit(y, 0.25, 42)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then sizes and class shares are preserved", func() {
				convey.So(len(s.Test), convey.ShouldEqual, 25)
				convey.So(len(s.Train), convey.ShouldEqual, 75)
				counts := map[int]int{}
				for _, r := range s.Test {
					counts[y[r]]++
				}
				convey.So(counts[0], convey.ShouldEqual, 15)
				convey.So(counts[1], convey.ShouldEqual, 8)
				convey.So(counts[2], convey.ShouldEqual, 2)
			})

			convey.Convey("Then partitions are disjoint and cover every row", func() {
				seen := map[int]bool{}
				for _, r := range append(append([]int(nil), s.Train...), s.Test...) {
					convey.So(seen[r], convey.ShouldBeFalse)
					seen[r] = true
				}
				convey.So(len(seen), convey.ShouldEqual, 100)
			})

			convey.Convey("Then the same seed reproduces the split and another seed does not", func() {
				again, _ := training.StratifiedSplit(y, 0.25, 42)
				convey.So(again, convey.ShouldResemble, s)
				other, _ := training.StratifiedSplit(y, 0.25, 43)
				convey.So(other.Test, convey.ShouldNotResemble, s.Test)
			})
		})

		convey.Convey("When varying test_size", func() {
			for _, ts := range []float64{0.1, 0.2, 0.33, 0.5, 0.7} {
				s, err := training.StratifiedSplit(y, ts, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(s.Train)+len(s.Test), convey.ShouldEqual, len(y))
				convey.So(len(s.Test), convey.ShouldEqual, int(math.Ceil(ts*float64(len(y)))))
			}
		})
	})

	convey.Convey("Given labels that cannot be stratified", t, func() {
		cases := map[string]struct {
			y  []int
			ts float64
		}{
			"single class":         {y: []int{0, 0, 0, 0}, ts: 0.5},
			"singleton class":      {y: []int{0, 0, 0, 1}, ts: 0.5},
			"test_size zero":       {y: []int{0, 0, 1, 1}, ts: 0},
			"test_size one":        {y: []int{0, 0, 1, 1}, ts: 1},
			"test set too small":   {y: []int{0, 0, 0, 1, 1, 1, 2, 2, 2}, ts: 0.1},
			"train set too small":  {y: []int{0, 0, 0, 1, 1, 1, 2, 2, 2}, ts: 0.9},
			"test_size is NaN-ish": {y: []int{0, 0, 1, 1}, ts: math.NaN()},
		}
		for name, c := range cases {
			convey.Convey("Then "+name+" is a configuration error", func() {
				_, err := training.StratifiedSplit(c.y, c.ts, 42)
				convey.So(errors.Is(err, training.ErrConfiguration), convey.ShouldBeTrue)
			})
		}
	})
}

func TestPipelineRun(t *testing.T) {
	convey.Convey("Given a prepared mock corpus", t, func() {
		ctx := context.Background()
		in := buildInput(240)
		clock := func() time.Time { return time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC) }

		convey.Convey("When running the pipeline", func() {
			w := &recordingWriter{}
			var stages []string
			p := training.New(w,
				training.WithTestSize(0.2),
				training.WithRandomState(42),
				training.WithModelVersion("1.2.3"),
				training.WithClock(clock),
				training.WithProgress(func(s string) { stages = append(stages, s) }),
			)
			res, err := p.Run(ctx, in)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then metadata describes the run", func() {
				info := res.Metadata.TrainingInfo
				convey.So(info.NTrainSamples+info.NTestSamples, convey.ShouldEqual, 240)
				convey.So(info.NTestSamples, convey.ShouldEqual, 48)
				convey.So(info.TestSize, convey.ShouldEqual, 0.2)
				convey.So(info.RandomState, convey.ShouldEqual, 42)
				convey.So(info.TrainedAt, convey.ShouldEqual, "2025-02-01T10:00:00.000000Z")
				convey.So(info.ModelVersion, convey.ShouldEqual, "1.2.3")
				convey.So(info.RunID, convey.ShouldNotBeBlank)
				convey.So(info.DataRunID, convey.ShouldEqual, "data-run")
				convey.So(info.NFeatures, convey.ShouldEqual, in.Vectorizer.Dim())
				convey.So(info.Fingerprint, convey.ShouldEqual, model.Fingerprint(
					in.Vectorizer.Terms(), in.Vectorizer.IDF(), in.Category.Classes(), in.Priority.Classes()))

				convey.So(res.Metadata.CategoryModel.Type, convey.ShouldEqual, model.ClassifierType)
				convey.So(res.Metadata.CategoryModel.Classes, convey.ShouldResemble, in.Category.Classes())
				convey.So(res.Metadata.PriorityModel.Classes, convey.ShouldResemble, in.Priority.Classes())
				convey.So(len(res.Metadata.CategoryModel.PerClass), convey.ShouldEqual, in.Category.Len())
			})

			convey.Convey("Then the scores are sane", func() {
				convey.So(res.Category.Accuracy, convey.ShouldBeGreaterThanOrEqualTo, 0.7)
				convey.So(res.Category.MeanConfidence, convey.ShouldBeBetweenOrEqual, 0, 1)
				convey.So(res.Priority.Accuracy, convey.ShouldBeBetweenOrEqual, 0, 1)
				support := 0
				for _, row := range res.Category.PerClass {
					support += row.Support
				}
				convey.So(support, convey.ShouldEqual, 48)
			})

			convey.Convey("Then the models are handed to the writer once", func() {
				convey.So(w.calls, convey.ShouldEqual, 1)
				convey.So(w.category, convey.ShouldEqual, res.CategoryModel)
				convey.So(w.priority, convey.ShouldEqual, res.PriorityModel)
				convey.So(w.meta, convey.ShouldResemble, res.Metadata)
			})

			convey.Convey("Then stages are reported in order", func() {
				convey.So(stages, convey.ShouldResemble, []string{
					training.StageSplit, training.StageFit, training.StageEvaluate, training.StagePersist,
				})
			})

			convey.Convey("Then a second run yields identical scores", func() {
				again, err := training.New(nil, training.WithClock(clock)).Run(ctx, in)
				convey.So(err, convey.ShouldBeNil)
				convey.So(again.Metadata.CategoryModel.Accuracy, convey.ShouldEqual, res.Metadata.CategoryModel.Accuracy)
				convey.So(again.Metadata.CategoryModel.MeanConfidence, convey.ShouldEqual, res.Metadata.CategoryModel.MeanConfidence)
				convey.So(again.Metadata.PriorityModel.Accuracy, convey.ShouldEqual, res.Metadata.PriorityModel.Accuracy)
				convey.So(again.Metadata.PriorityModel.MeanConfidence, convey.ShouldEqual, res.Metadata.PriorityModel.MeanConfidence)
				convey.So(again.Metadata.TrainingInfo.RunID, convey.ShouldNotEqual, res.Metadata.TrainingInfo.RunID)
			})
		})

		convey.Convey("When test_size changes", func() {
			small, err := training.New(nil, training.WithTestSize(0.1)).Run(ctx, in)
			convey.So(err, convey.ShouldBeNil)
			large, err := training.New(nil, training.WithTestSize(0.3)).Run(ctx, in)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the train set size follows and the total is kept", func() {
				si, li := small.Metadata.TrainingInfo, large.Metadata.TrainingInfo
				convey.So(si.NTrainSamples+si.NTestSamples, convey.ShouldEqual, 240)
				convey.So(li.NTrainSamples+li.NTestSamples, convey.ShouldEqual, 240)
				convey.So(si.NTrainSamples, convey.ShouldBeGreaterThan, li.NTrainSamples)
			})
		})

		convey.Convey("When the writer fails", func() {
			w := &recordingWriter{err: errors.New("disk full")}
			_, err := training.New(w).Run(ctx, in)
			convey.So(errors.Is(err, training.ErrPersist), convey.ShouldBeTrue)
		})

		convey.Convey("When a priority class never occurs", func() {
			padded, err := labels.FromClasses(append(in.Priority.Classes(), "P9"))
			convey.So(err, convey.ShouldBeNil)
			bad := in
			bad.Priority = padded
			w := &recordingWriter{}

			_, err = training.New(w).Run(ctx, bad)

			convey.Convey("Then it is a configuration error and nothing is written", func() {
				convey.So(errors.Is(err, training.ErrConfiguration), convey.ShouldBeTrue)
				convey.So(w.calls, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a target has a single class", func() {
			single, _ := labels.Fit([]string{"general"})
			bad := in
			bad.Category = single
			w := &recordingWriter{}
			_, err := training.New(w).Run(ctx, bad)
			convey.So(errors.Is(err, training.ErrConfiguration), convey.ShouldBeTrue)
			convey.So(w.calls, convey.ShouldEqual, 0)
		})

		convey.Convey("When labels and rows disagree", func() {
			bad := in
			bad.Dataset.YPriority = bad.Dataset.YPriority[:10]
			_, err := training.New(nil).Run(ctx, bad)
			convey.So(errors.Is(err, training.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}

func TestEvaluate(t *testing.T) {
	convey.Convey("Given a fixed two-class model", t, func() {
		// Feature 0 votes for class 0, feature 1 for class 1.
		m := &classifier.Model{
			Classes:   2,
			Features:  2,
			Coef:      []float64{5, -5, -5, 5},
			Intercept: []float64{0, 0},
		}
		X := []vectorize.Vector{
			{Indices: []int{0}, Values: []float64{1}, Dim: 2},
			{Indices: []int{1}, Values: []float64{1}, Dim: 2},
			{Indices: []int{1}, Values: []float64{1}, Dim: 2},
			{Indices: []int{0}, Values: []float64{1}, Dim: 2},
		}
		y := []int{0, 1, 0, 0}

		ev, err := training.Evaluate(m, X, y, []string{"a", "b"})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then accuracy and per-class figures follow the confusion counts", func() {
			convey.So(ev.Accuracy, convey.ShouldEqual, 0.75)
			a, b := ev.PerClass[0], ev.PerClass[1]
			convey.So(a.Precision, convey.ShouldEqual, 1.0)
			convey.So(a.Recall, convey.ShouldAlmostEqual, 2.0/3, 1e-12)
			convey.So(a.Support, convey.ShouldEqual, 3)
			convey.So(b.Precision, convey.ShouldEqual, 0.5)
			convey.So(b.Recall, convey.ShouldEqual, 1.0)
			convey.So(b.F1, convey.ShouldAlmostEqual, 2*0.5/1.5, 1e-12)
			convey.So(ev.MeanConfidence, convey.ShouldAlmostEqual, 1/(1+math.Exp(-10)), 1e-12)
		})

		convey.Convey("Then mismatched label spaces are rejected", func() {
			_, err := training.Evaluate(m, X, y, []string{"a", "b", "c"})
			convey.So(errors.Is(err, training.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}
