package nlp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Unbounded is the magnitude at or beyond which a bound is ignored.
const Unbounded = 1e19

// Problem describes a nonlinear program with analytic derivatives.
// Jacobian writes the m x n constraint Jacobian in row-major order.
// LagrangianHessian writes sigma*Hf(x) + sum_i lambda_i*Hg_i(x) and is optional.
// Reduction is optional too; see Reduction.
type Problem struct {
	Dim   int
	Lower []float64
	Upper []float64

	ConstraintLower []float64
	ConstraintUpper []float64

	Objective         func(x []float64) float64
	Gradient          func(grad, x []float64)
	Constraints       func(g, x []float64)
	Jacobian          func(jac, x []float64)
	LagrangianHessian func(hess *mat.SymDense, x, lambda []float64, sigma float64)

	Reduction *Reduction
}

// Reduction states that the equality rows fix every variable outside Free
// once the free ones are chosen, as the states of a shooting problem are
// fixed by its controls. Dependent variables must be unbounded.
type Reduction struct {
	// Free lists the independent variables.
	Free []int
	// Complete overwrites the dependent variables of x so every equality
	// row holds.
	Complete func(x []float64)
	// Gradient writes the total derivative of the objective at a completed
	// x with respect to each free variable, in Free order.
	Gradient func(grad, x []float64)
}

func (r *Reduction) validate(p *Problem) error {
	if r.Complete == nil || r.Gradient == nil {
		return fmt.Errorf("nlp: reduction needs complete and gradient")
	}
	if len(r.Free) == 0 || len(r.Free) > p.Dim {
		return fmt.Errorf("nlp: reduction has %d free variables of %d", len(r.Free), p.Dim)
	}
	free := make([]bool, p.Dim)
	for _, j := range r.Free {
		if j < 0 || j >= p.Dim || free[j] {
			return fmt.Errorf("nlp: invalid or repeated free variable %d", j)
		}
		free[j] = true
	}
	for j, isFree := range free {
		if !isFree && (p.Lower[j] > -Unbounded || p.Upper[j] < Unbounded) {
			return fmt.Errorf("nlp: dependent variable %d is bounded", j)
		}
	}
	return nil
}

func (p *Problem) NumConstraints() int {
	return len(p.ConstraintLower)
}

func (p *Problem) Validate() error {
	if p.Dim <= 0 {
		return fmt.Errorf("nlp: invalid dimension %d", p.Dim)
	}
	if len(p.Lower) != p.Dim || len(p.Upper) != p.Dim {
		return fmt.Errorf("nlp: bounds have %d/%d entries, want %d", len(p.Lower), len(p.Upper), p.Dim)
	}
	if len(p.ConstraintLower) != len(p.ConstraintUpper) {
		return fmt.Errorf("nlp: constraint bounds have %d/%d entries", len(p.ConstraintLower), len(p.ConstraintUpper))
	}
	if p.Objective == nil || p.Gradient == nil {
		return fmt.Errorf("nlp: objective and gradient are required")
	}
	if p.NumConstraints() > 0 && (p.Constraints == nil || p.Jacobian == nil) {
		return fmt.Errorf("nlp: constraints and jacobian are required for %d rows", p.NumConstraints())
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("nlp: variable %d has lower %g > upper %g", i, p.Lower[i], p.Upper[i])
		}
	}
	for i := range p.ConstraintLower {
		if p.ConstraintLower[i] > p.ConstraintUpper[i] {
			return fmt.Errorf("nlp: constraint %d has lower %g > upper %g", i, p.ConstraintLower[i], p.ConstraintUpper[i])
		}
	}
	if p.Reduction != nil {
		return p.Reduction.validate(p)
	}
	return nil
}

// reducible reports whether every constraint row is an equality, so a
// reduction covers all of them.
func (p *Problem) reducible() bool {
	if p.Reduction == nil {
		return false
	}
	for i := range p.ConstraintLower {
		if p.ConstraintLower[i] != p.ConstraintUpper[i] {
			return false
		}
	}
	return true
}

// MaxViolation is the largest bound or constraint violation at x.
func (p *Problem) MaxViolation(x []float64) float64 {
	worst := 0.0
	for i, v := range x {
		worst = math.Max(worst, excess(v, p.Lower[i], p.Upper[i]))
	}
	if m := p.NumConstraints(); m > 0 {
		g := make([]float64, m)
		p.Constraints(g, x)
		for i, v := range g {
			worst = math.Max(worst, excess(v, p.ConstraintLower[i], p.ConstraintUpper[i]))
		}
	}
	return worst
}

func excess(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	switch {
	case lo > -Unbounded && v < lo:
		return lo - v
	case hi < Unbounded && v > hi:
		return v - hi
	}
	return 0
}

func finite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
