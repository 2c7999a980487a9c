// Package classifier implements multinomial logistic regression over sparse
// TF-IDF rows, fit with L-BFGS.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/okian/triage/internal/domain/vectorize"
)

// Sentinel errors for this package.
var (
	ErrInvalidInput      = errors.New("invalid training input")
	ErrEmptyClass        = errors.New("class has no training rows")
	ErrOptimizer         = errors.New("optimizer failed")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrNonFinite         = errors.New("non-finite model output")
	ErrInvalidModel      = errors.New("invalid model")
)

// Defaults.
const (
	DefaultMaxIter        = 1000
	DefaultTolerance      = 1e-4
	DefaultRegularization = 1.0
)

// Model holds the fitted weights. Coef is Classes x Features in row-major
// order. A Model is read-only after Fit and safe for concurrent use.
type Model struct {
	Classes   int       `msgpack:"classes"`
	Features  int       `msgpack:"features"`
	Coef      []float64 `msgpack:"coef"`
	Intercept []float64 `msgpack:"intercept"`
	NIter     int       `msgpack:"n_iter"`
	Converged bool      `msgpack:"converged"`
}

// Option configures Fit.
type Option func(*fitOptions)

type fitOptions struct {
	maxIter   int
	tolerance float64
	c         float64
	balanced  bool
}

// WithMaxIter bounds the number of L-BFGS iterations.
func WithMaxIter(n int) Option {
	return func(o *fitOptions) {
		if n > 0 {
			o.maxIter = n
		}
	}
}

// WithTolerance sets the gradient infinity-norm stopping threshold.
func WithTolerance(tol float64) Option {
	return func(o *fitOptions) {
		if tol > 0 {
			o.tolerance = tol
		}
	}
}

// WithRegularization sets the inverse L2 strength C.
func WithRegularization(c float64) Option {
	return func(o *fitOptions) {
		if c > 0 {
			o.c = c
		}
	}
}

// WithBalancedClassWeight toggles n/(K*count) sample weighting.
func WithBalancedClassWeight(on bool) Option {
	return func(o *fitOptions) { o.balanced = on }
}

// Fit trains a model on rows X with labels y in [0, classes). Stopping at the
// iteration limit is not an error: the returned model has Converged=false.
func Fit(ctx context.Context, X []vectorize.Vector, y []int, classes int, opts ...Option) (*Model, error) {
	o := fitOptions{
		maxIter:   DefaultMaxIter,
		tolerance: DefaultTolerance,
		c:         DefaultRegularization,
		balanced:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrInvalidInput, len(X), len(y))
	}
	if classes < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidInput, classes)
	}
	dim := X[0].Dim
	if dim < 1 {
		return nil, fmt.Errorf("%w: zero feature dimension", ErrInvalidInput)
	}

	counts := make([]int, classes)
	for i, label := range y {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("%w: label %d at row %d outside [0,%d)", ErrInvalidInput, label, i, classes)
		}
		if X[i].Dim != dim {
			return nil, fmt.Errorf("%w: row %d has dim %d, want %d", ErrDimensionMismatch, i, X[i].Dim, dim)
		}
		counts[label]++
	}
	for k, n := range counts {
		if n == 0 {
			return nil, fmt.Errorf("%w: class %d", ErrEmptyClass, k)
		}
	}

	classWeight := make([]float64, classes)
	for k, n := range counts {
		classWeight[k] = 1
		if o.balanced {
			classWeight[k] = float64(len(y)) / (float64(classes) * float64(n))
		}
	}

	obj := newObjective(X, y, classes, dim, classWeight, o.c)
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
	}
	settings := &optimize.Settings{
		MajorIterations:   o.maxIter,
		GradientThreshold: o.tolerance,
		Converger: &ctxConverger{
			ctx:  ctx,
			next: &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100},
		},
	}

	result, err := optimize.Minimize(problem, make([]float64, obj.size()), settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %w", ErrOptimizer, err)
	}

	m := &Model{
		Classes:   classes,
		Features:  dim,
		Coef:      append([]float64(nil), result.X[:classes*dim]...),
		Intercept: append([]float64(nil), result.X[classes*dim:]...),
		NIter:     result.MajorIterations,
		Converged: err == nil && converged(result.Status),
	}
	if verr := m.Validate(); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptimizer, verr)
	}
	return m, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.Success, optimize.MethodConverge:
		return true
	default:
		return false
	}
}

// Validate checks shapes and that every weight is finite.
func (m *Model) Validate() error {
	if m.Classes < 2 || m.Features < 1 {
		return fmt.Errorf("%w: %d classes, %d features", ErrInvalidModel, m.Classes, m.Features)
	}
	if len(m.Coef) != m.Classes*m.Features || len(m.Intercept) != m.Classes {
		return fmt.Errorf("%w: coef %d, intercept %d for %dx%d", ErrInvalidModel, len(m.Coef), len(m.Intercept), m.Classes, m.Features)
	}
	for _, w := range m.Coef {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite coefficient", ErrInvalidModel)
		}
	}
	for _, w := range m.Intercept {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite intercept", ErrInvalidModel)
		}
	}
	return nil
}

// Probabilities returns the softmax distribution over classes for x.
func (m *Model) Probabilities(x vectorize.Vector) ([]float64, error) {
	if x.Dim != m.Features {
		return nil, fmt.Errorf("%w: vector has %d features, model expects %d", ErrDimensionMismatch, x.Dim, m.Features)
	}
	for _, idx := range x.Indices {
		if idx < 0 || idx >= m.Features {
			return nil, fmt.Errorf("%w: index %d", ErrDimensionMismatch, idx)
		}
	}

	z := make([]float64, m.Classes)
	m.logits(x, z)
	lse := floats.LogSumExp(z)
	for k := range z {
		z[k] = math.Exp(z[k] - lse)
		if math.IsNaN(z[k]) || math.IsInf(z[k], 0) {
			return nil, ErrNonFinite
		}
	}
	return z, nil
}

// Predict returns the argmax class, its probability and the full distribution.
// Exact ties resolve to the lowest index.
func (m *Model) Predict(x vectorize.Vector) (int, float64, []float64, error) {
	p, err := m.Probabilities(x)
	if err != nil {
		return 0, 0, nil, err
	}
	idx := floats.MaxIdx(p)
	return idx, p[idx], p, nil
}

func (m *Model) logits(x vectorize.Vector, z []float64) {
	for k := range z {
		z[k] = x.Dot(m.Coef[k*m.Features:(k+1)*m.Features]) + m.Intercept[k]
	}
}

// ctxConverger stops the optimizer once ctx is done.
type ctxConverger struct {
	ctx  context.Context
	next optimize.Converger
}

func (c *ctxConverger) Init(dim int) { c.next.Init(dim) }

func (c *ctxConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.Failure
	}
	return c.next.Converged(loc)
}
