package mpc

import (
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/nlp"
	"github.com/san-kum/mpcdrive/internal/polyfit"
)

// problem is one horizon NLP: the cost, the pinned initial state and the
// kinematic transitions against a fixed reference curve.
type problem struct {
	params Params
	layout Layout
	init   [numStateKinds]float64
	model  transition

	partial []float64
}

func newProblem(params Params, layout Layout, init dynamo.VehicleState, ref polyfit.Poly) *problem {
	return &problem{
		params: params,
		layout: layout,
		init:   [numStateKinds]float64{init.X, init.Y, init.Psi, init.V, init.CTE, init.EPsi},
		model:  newTransition(ref, params.Lf, params.Dt),

		partial: make([]float64, layout.NumVars()),
	}
}

func (p *problem) localValues(x []float64, t int) [numLocal]float64 {
	var s [numLocal]float64
	for j, idx := range p.layout.local(t) {
		s[j] = x[idx]
	}
	return s
}

func (p *problem) objective(x []float64) float64 {
	w := p.params.Weights
	v := p.layout.View(x)
	cost := 0.0
	for t := 0; t < p.layout.Steps; t++ {
		dv := v.V[t] - p.params.RefSpeed
		cost += w.CTE*v.CTE[t]*v.CTE[t] + w.EPsi*v.EPsi[t]*v.EPsi[t] + w.Speed*dv*dv
	}
	for t := range v.Delta {
		cost += w.Steer*v.Delta[t]*v.Delta[t] + w.Throttle*v.A[t]*v.A[t]
	}
	for t := 0; t+1 < len(v.Delta); t++ {
		dd := v.Delta[t+1] - v.Delta[t]
		da := v.A[t+1] - v.A[t]
		cost += w.SteerRate*dd*dd + w.ThrottleRate*da*da
	}
	return cost
}

func (p *problem) gradient(grad, x []float64) {
	for i := range grad {
		grad[i] = 0
	}
	w := p.params.Weights
	l := p.layout
	v := l.View(x)
	for t := 0; t < l.Steps; t++ {
		grad[l.CTE.At(t)] = 2 * w.CTE * v.CTE[t]
		grad[l.EPsi.At(t)] = 2 * w.EPsi * v.EPsi[t]
		grad[l.V.At(t)] = 2 * w.Speed * (v.V[t] - p.params.RefSpeed)
	}
	for t := range v.Delta {
		grad[l.Delta.At(t)] = 2 * w.Steer * v.Delta[t]
		grad[l.A.At(t)] = 2 * w.Throttle * v.A[t]
	}
	for t := 0; t+1 < len(v.Delta); t++ {
		dd := 2 * w.SteerRate * (v.Delta[t+1] - v.Delta[t])
		grad[l.Delta.At(t+1)] += dd
		grad[l.Delta.At(t)] -= dd
		da := 2 * w.ThrottleRate * (v.A[t+1] - v.A[t])
		grad[l.A.At(t+1)] += da
		grad[l.A.At(t)] -= da
	}
}

// constraints fills g: pinned state values in rows t=0 and transition
// residuals (next - predicted) in rows t>0.
func (p *problem) constraints(g, x []float64) {
	l := p.layout
	states := l.States()
	for k, span := range states {
		g[l.Row(k, 0)] = x[span.At(0)]
	}
	for t := 0; t+1 < l.Steps; t++ {
		pred := p.model.next(p.localValues(x, t))
		for k, span := range states {
			g[l.Row(k, t+1)] = x[span.At(t+1)] - pred[k]
		}
	}
}

func (p *problem) jacobian(jac, x []float64) {
	for i := range jac {
		jac[i] = 0
	}
	l := p.layout
	n := l.NumVars()
	states := l.States()
	for k, span := range states {
		jac[l.Row(k, 0)*n+span.At(0)] = 1
	}
	for t := 0; t+1 < l.Steps; t++ {
		idx := l.local(t)
		d := p.model.jacobian(p.localValues(x, t))
		for k, span := range states {
			row := l.Row(k, t+1) * n
			jac[row+span.At(t+1)] = 1
			for j := 0; j < numLocal; j++ {
				jac[row+idx[j]] -= d[k][j]
			}
		}
	}
}

func (p *problem) bounds() (lower, upper []float64) {
	l := p.layout
	n := l.NumVars()
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], upper[i] = -nlp.Unbounded, nlp.Unbounded
	}
	for t := 0; t < l.Delta.Len; t++ {
		lower[l.Delta.At(t)], upper[l.Delta.At(t)] = -p.params.MaxSteer, p.params.MaxSteer
		lower[l.A.At(t)], upper[l.A.At(t)] = -p.params.MaxThrottle, p.params.MaxThrottle
	}
	return lower, upper
}

func (p *problem) constraintBounds() (lower, upper []float64) {
	l := p.layout
	m := l.NumConstraints()
	lower = make([]float64, m)
	upper = make([]float64, m)
	for k := range l.States() {
		lower[l.Row(k, 0)] = p.init[k]
		upper[l.Row(k, 0)] = p.init[k]
	}
	return lower, upper
}

// rollout overwrites the states of x with the initial state driven forward
// by the controls of x, so every equality row holds.
func (p *problem) rollout(x []float64) {
	l := p.layout
	states := l.States()
	for k, span := range states {
		x[span.At(0)] = p.init[k]
	}
	for t := 0; t+1 < l.Steps; t++ {
		next := p.model.next(p.localValues(x, t))
		for k, span := range states {
			x[span.At(t+1)] = next[k]
		}
	}
}

// controls lists the decision variables left free once the states are
// rolled out: every delta, then every a.
func (p *problem) controls() []int {
	l := p.layout
	free := make([]int, 0, l.Delta.Len+l.A.Len)
	for t := 0; t < l.Delta.Len; t++ {
		free = append(free, l.Delta.At(t))
	}
	for t := 0; t < l.A.Len; t++ {
		free = append(free, l.A.At(t))
	}
	return free
}

// controlGradient is the total derivative of the cost along a rolled out x
// with respect to the controls, in the order of controls. The state
// sensitivities are carried backwards through the step Jacobians.
func (p *problem) controlGradient(grad, x []float64) {
	l := p.layout
	states := l.States()
	p.gradient(p.partial, x)

	var adj [numStateKinds]float64
	last := l.Steps - 1
	for k, span := range states {
		adj[k] = p.partial[span.At(last)]
	}
	for t := last - 1; t >= 0; t-- {
		jac := p.model.jacobian(p.localValues(x, t))
		var prev [numStateKinds]float64
		for k, span := range states {
			prev[k] = p.partial[span.At(t)]
		}
		dDelta := p.partial[l.Delta.At(t)]
		dA := p.partial[l.A.At(t)]
		for k := range adj {
			for j := 0; j < numStateKinds; j++ {
				prev[j] += adj[k] * jac[k][j]
			}
			dDelta += adj[k] * jac[k][locDelta]
			dA += adj[k] * jac[k][locA]
		}
		grad[t] = dDelta
		grad[l.Delta.Len+t] = dA
		adj = prev
	}
}

// initialGuess rolls the initial state forward under zero actuation, so the
// guess satisfies every equality constraint.
func (p *problem) initialGuess() []float64 {
	x := make([]float64, p.layout.NumVars())
	p.rollout(x)
	return x
}

func (p *problem) nlp() *nlp.Problem {
	lower, upper := p.bounds()
	glo, ghi := p.constraintBounds()
	return &nlp.Problem{
		Dim:             p.layout.NumVars(),
		Lower:           lower,
		Upper:           upper,
		ConstraintLower: glo,
		ConstraintUpper: ghi,
		Objective:       p.objective,
		Gradient:        p.gradient,
		Constraints:     p.constraints,
		Jacobian:        p.jacobian,
		Reduction: &nlp.Reduction{
			Free:     p.controls(),
			Complete: p.rollout,
			Gradient: p.controlGradient,
		},
	}
}
