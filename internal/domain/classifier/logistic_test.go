package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/triage/internal/domain/vectorize"
)

// toyData returns n rows per class where class k is dominated by feature k.
func toyData(classes, perClass int) ([]vectorize.Vector, []int) {
	dim := classes + 1
	var X []vectorize.Vector
	var y []int
	for k := 0; k < classes; k++ {
		for i := 0; i < perClass; i++ {
			noise := 0.1 * float64(i%3)
			X = append(X, vectorize.Vector{
				Indices: []int{k, classes},
				Values:  []float64{1 - noise, noise},
				Dim:     dim,
			})
			y = append(y, k)
		}
	}
	return X, y
}

func TestFit(t *testing.T) {
	Convey("Given separable data with three classes", t, func() {
		ctx := context.Background()
		X, y := toyData(3, 6)

		Convey("When fitting", func() {
			m, err := Fit(ctx, X, y, 3)
			So(err, ShouldBeNil)

			Convey("Then the model has the expected shape", func() {
				So(m.Classes, ShouldEqual, 3)
				So(m.Features, ShouldEqual, 4)
				So(len(m.Coef), ShouldEqual, 12)
				So(len(m.Intercept), ShouldEqual, 3)
				So(m.Validate(), ShouldBeNil)
				So(m.Converged, ShouldBeTrue)
				So(m.NIter, ShouldBeGreaterThan, 0)
			})

			Convey("Then every training row is classified correctly", func() {
				for i, row := range X {
					idx, conf, probs, err := m.Predict(row)
					So(err, ShouldBeNil)
					So(idx, ShouldEqual, y[i])
					So(conf, ShouldEqual, probs[idx])
					var sum float64
					for _, p := range probs {
						So(p, ShouldBeBetweenOrEqual, 0, 1)
						sum += p
					}
					So(sum, ShouldAlmostEqual, 1.0, 1e-9)
				}
			})

			Convey("Then refitting is deterministic", func() {
				again, err := Fit(ctx, X, y, 3)
				So(err, ShouldBeNil)
				So(again.Coef, ShouldResemble, m.Coef)
				So(again.Intercept, ShouldResemble, m.Intercept)
			})
		})

		Convey("When the iteration limit is tiny", func() {
			m, err := Fit(ctx, X, y, 3, WithMaxIter(1))

			Convey("Then a usable model is returned and marked not converged", func() {
				So(err, ShouldBeNil)
				So(m, ShouldNotBeNil)
				So(m.Converged, ShouldBeFalse)
				So(m.Validate(), ShouldBeNil)
			})
		})

		Convey("When stronger regularization is used", func() {
			loose, err := Fit(ctx, X, y, 3, WithRegularization(100))
			So(err, ShouldBeNil)
			tight, err := Fit(ctx, X, y, 3, WithRegularization(0.01))
			So(err, ShouldBeNil)

			Convey("Then the weights shrink", func() {
				So(norm(tight.Coef), ShouldBeLessThan, norm(loose.Coef))
			})
		})

		Convey("When a class has no rows", func() {
			_, err := Fit(ctx, X, y, 4)
			So(errors.Is(err, ErrEmptyClass), ShouldBeTrue)
		})

		Convey("When inputs are malformed", func() {
			_, err := Fit(ctx, X, y[:3], 3)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

			_, err = Fit(ctx, X, y, 1)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

			bad := append([]int(nil), y...)
			bad[0] = 7
			_, err = Fit(ctx, X, bad, 3)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

			rows := append([]vectorize.Vector(nil), X...)
			rows[1] = vectorize.Vector{Dim: 9}
			_, err = Fit(ctx, rows, y, 3)
			So(errors.Is(err, ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Fit(cctx, X, y, 3)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestProbabilities(t *testing.T) {
	Convey("Given a zero model", t, func() {
		m := &Model{Classes: 3, Features: 2, Coef: make([]float64, 6), Intercept: make([]float64, 3)}

		Convey("When predicting", func() {
			idx, conf, probs, err := m.Predict(vectorize.Vector{Dim: 2})

			Convey("Then the distribution is uniform and the tie goes to index zero", func() {
				So(err, ShouldBeNil)
				So(idx, ShouldEqual, 0)
				So(conf, ShouldAlmostEqual, 1.0/3, 1e-12)
				So(len(probs), ShouldEqual, 3)
			})
		})

		Convey("When the vector width differs", func() {
			_, err := m.Probabilities(vectorize.Vector{Dim: 5})
			So(errors.Is(err, ErrDimensionMismatch), ShouldBeTrue)

			_, err = m.Probabilities(vectorize.Vector{Indices: []int{4}, Values: []float64{1}, Dim: 2})
			So(errors.Is(err, ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("When the model is damaged", func() {
			m.Coef[0] = math.Inf(1)
			So(errors.Is(m.Validate(), ErrInvalidModel), ShouldBeTrue)

			short := &Model{Classes: 3, Features: 2, Coef: make([]float64, 5), Intercept: make([]float64, 3)}
			So(errors.Is(short.Validate(), ErrInvalidModel), ShouldBeTrue)
		})
	})
}

func TestObjectiveGradient(t *testing.T) {
	Convey("Given the training objective", t, func() {
		X, y := toyData(2, 3)
		obj := newObjective(X, y, 2, 3, []float64{1, 1}, 1)
		params := []float64{0.3, -0.2, 0.1, 0.05, -0.4, 0.2, 0.1, -0.1}
		grad := make([]float64, len(params))
		obj.gradient(grad, params)

		Convey("Then the analytic gradient matches finite differences", func() {
			const h = 1e-6
			for j := range params {
				plus := append([]float64(nil), params...)
				minus := append([]float64(nil), params...)
				plus[j] += h
				minus[j] -= h
				numeric := (obj.value(plus) - obj.value(minus)) / (2 * h)
				So(grad[j], ShouldAlmostEqual, numeric, 1e-6)
			}
		})
	})
}

func norm(w []float64) float64 {
	var s float64
	for _, x := range w {
		s += x * x
	}
	return math.Sqrt(s)
}
