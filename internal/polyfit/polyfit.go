// Package polyfit fits and evaluates low-degree polynomials.
package polyfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// Poly holds coefficients lowest order first: p(x) = c0 + c1 x + c2 x^2 + ...
type Poly []float64

// Fit solves the least-squares polynomial of the given degree through the
// points by QR factorisation of the Vandermonde matrix. The abscissae are
// scaled to [-1, 1] before factorising.
func Fit(xs, ys []float64, degree int) (Poly, error) {
	if degree < 0 {
		return nil, fmt.Errorf("%w: degree %d", dynamo.ErrParameterBounds, degree)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x values, %d y values", dynamo.ErrMalformedTelemetry, len(xs), len(ys))
	}
	n := degree + 1
	if len(xs) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", dynamo.ErrInsufficientPoints, len(xs), n)
	}

	scale := 0.0
	distinct := make(map[float64]struct{}, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return nil, fmt.Errorf("%w: non-finite waypoint %d", dynamo.ErrMalformedTelemetry, i)
		}
		scale = math.Max(scale, math.Abs(x))
		distinct[x] = struct{}{}
	}
	if len(distinct) < n {
		return nil, fmt.Errorf("%w: %d distinct abscissae, need %d", dynamo.ErrInsufficientPoints, len(distinct), n)
	}
	if scale == 0 {
		scale = 1
	}

	m := len(xs)
	a := mat.NewDense(m, n, nil)
	for i, x := range xs {
		s := x / scale
		p := 1.0
		for j := 0; j < n; j++ {
			a.Set(i, j, p)
			p *= s
		}
	}
	b := mat.NewVecDense(m, append([]float64(nil), ys...))

	var qr mat.QR
	qr.Factorize(a)

	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInsufficientPoints, err)
	}

	coeffs := make(Poly, n)
	f := 1.0
	for j := 0; j < n; j++ {
		coeffs[j] = c.AtVec(j) / f
		f *= scale
	}
	return coeffs, nil
}

func (p Poly) Degree() int {
	return len(p) - 1
}

func (p Poly) Eval(x float64) float64 {
	y := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		y = y*x + p[i]
	}
	return y
}

func (p Poly) Derivative() Poly {
	if len(p) <= 1 {
		return Poly{0}
	}
	d := make(Poly, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}
	return d
}

func (p Poly) Slope(x float64) float64 {
	return p.Derivative().Eval(x)
}

func (p Poly) EvalDual(x dual.Number) dual.Number {
	var y dual.Number
	for i := len(p) - 1; i >= 0; i-- {
		y = dual.Mul(y, x)
		y.Real += p[i]
	}
	return y
}

// Sample evaluates the curve at spacing*i for i = 1..n.
func (p Poly) Sample(spacing float64, n int) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := 0; i < n; i++ {
		x := spacing * float64(i+1)
		xs[i] = x
		ys[i] = p.Eval(x)
	}
	return xs, ys
}
