package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/triage/internal/domain/vectorize"
)

// objective is the weighted multinomial cross-entropy with an L2 penalty on
// the coefficients (not the intercepts):
//
//	L = (1/S) sum_i s_i (logsumexp(z_i) - z_i[y_i]) + ||W||^2 / (2 C S)
//
// where S is the sum of sample weights. Value and gradient are computed
// together and cached for the last point, since L-BFGS asks for both.
type objective struct {
	x       []vectorize.Vector
	y       []int
	classes int
	dim     int
	weights []float64
	c       float64
	sumW    float64

	lastX    []float64
	lastF    float64
	lastGrad []float64
	z        []float64
}

func newObjective(x []vectorize.Vector, y []int, classes, dim int, classWeight []float64, c float64) *objective {
	o := &objective{
		x:       x,
		y:       y,
		classes: classes,
		dim:     dim,
		weights: make([]float64, len(y)),
		c:       c,
		z:       make([]float64, classes),
	}
	for i, label := range y {
		o.weights[i] = classWeight[label]
		o.sumW += o.weights[i]
	}
	return o
}

func (o *objective) size() int { return o.classes*o.dim + o.classes }

func (o *objective) value(params []float64) float64 {
	o.evaluate(params)
	return o.lastF
}

func (o *objective) gradient(grad, params []float64) {
	o.evaluate(params)
	copy(grad, o.lastGrad)
}

func (o *objective) evaluate(params []float64) {
	if o.lastX != nil && floats.Equal(o.lastX, params) {
		return
	}
	if o.lastX == nil {
		o.lastX = make([]float64, len(params))
		o.lastGrad = make([]float64, len(params))
	}
	copy(o.lastX, params)

	nCoef := o.classes * o.dim
	coef := params[:nCoef]
	intercept := params[nCoef:]
	grad := o.lastGrad
	for j := range grad {
		grad[j] = 0
	}

	var loss float64
	for i, row := range o.x {
		for k := 0; k < o.classes; k++ {
			o.z[k] = row.Dot(coef[k*o.dim:(k+1)*o.dim]) + intercept[k]
		}
		lse := floats.LogSumExp(o.z)
		s := o.weights[i]
		loss += s * (lse - o.z[o.y[i]])

		for k := 0; k < o.classes; k++ {
			g := math.Exp(o.z[k] - lse)
			if k == o.y[i] {
				g--
			}
			g *= s / o.sumW
			grad[nCoef+k] += g
			base := k * o.dim
			for n, idx := range row.Indices {
				grad[base+idx] += g * row.Values[n]
			}
		}
	}

	penalty := 1 / (o.c * o.sumW)
	loss = loss/o.sumW + 0.5*penalty*floats.Dot(coef, coef)
	floats.AddScaled(grad[:nCoef], penalty, coef)

	o.lastF = loss
}
