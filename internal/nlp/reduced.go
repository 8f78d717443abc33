package nlp

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	armijo            = 1e-4
	maxBacktrack      = 40
	reducedIterations = 200
	stallIterations   = 5
	boundSlack        = 1e-10
)

// reducedSearch holds a projected BFGS search over the free variables of a
// reduction. Each free variable bounded on both sides is divided by its
// half-width, so its box has width 2 in search coordinates.
type reducedSearch struct {
	p *Problem
	r *Reduction

	scale  []float64
	lo, hi []float64
	active []bool

	evals int
}

func newReducedSearch(p *Problem) *reducedSearch {
	r := p.Reduction
	n := len(r.Free)
	s := &reducedSearch{
		p:      p,
		r:      r,
		scale:  make([]float64, n),
		lo:     make([]float64, n),
		hi:     make([]float64, n),
		active: make([]bool, n),
	}
	for k, j := range r.Free {
		lo, hi := p.Lower[j], p.Upper[j]
		s.scale[k] = 1
		if lo > -Unbounded && hi < Unbounded && hi > lo {
			s.scale[k] = (hi - lo) / 2
		}
		s.lo[k], s.hi[k] = math.Inf(-1), math.Inf(1)
		if lo > -Unbounded {
			s.lo[k] = lo / s.scale[k]
		}
		if hi < Unbounded {
			s.hi[k] = hi / s.scale[k]
		}
	}
	return s
}

func (s *reducedSearch) project(z []float64) {
	for k := range z {
		z[k] = math.Max(s.lo[k], math.Min(s.hi[k], z[k]))
	}
}

// eval writes the completed point for z into x and returns its objective.
func (s *reducedSearch) eval(z, x []float64) float64 {
	for k, j := range s.r.Free {
		x[j] = math.Max(s.p.Lower[j], math.Min(s.p.Upper[j], z[k]*s.scale[k]))
	}
	s.r.Complete(x)
	s.evals++
	return s.p.Objective(x)
}

// grad writes the reduced gradient at a completed x in scaled coordinates.
func (s *reducedSearch) grad(g, x []float64) {
	s.r.Gradient(g, x)
	for k := range g {
		g[k] *= s.scale[k]
	}
}

// bind marks the variables held at a bound by their gradient and returns
// the largest gradient component among the rest.
func (s *reducedSearch) bind(z, g []float64) float64 {
	worst := 0.0
	for k := range z {
		s.active[k] = (z[k] <= s.lo[k]+boundSlack && g[k] > 0) ||
			(z[k] >= s.hi[k]-boundSlack && g[k] < 0)
		if !s.active[k] {
			worst = math.Max(worst, math.Abs(g[k]))
		}
	}
	return worst
}

// direction sets d = -H g over the unbound variables and returns g.d.
func (s *reducedSearch) direction(d, hinv, g []float64) float64 {
	n := len(g)
	for i := 0; i < n; i++ {
		d[i] = 0
		if s.active[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if !s.active[j] {
				d[i] -= hinv[i*n+j] * g[j]
			}
		}
	}
	return floats.Dot(g, d)
}

// lineSearch backtracks along the projected path z + alpha*d until the
// Armijo condition holds. zt and xt receive the accepted point.
func (s *reducedSearch) lineSearch(z, d, g []float64, f float64, zt, xt []float64) (float64, bool) {
	alpha := 1.0
	for i := 0; i < maxBacktrack; i++ {
		for k := range z {
			zt[k] = z[k] + alpha*d[k]
		}
		s.project(zt)
		alpha *= 0.5

		dec := 0.0
		for k := range z {
			dec += g[k] * (zt[k] - z[k])
		}
		if dec >= 0 {
			continue
		}
		ft := s.eval(zt, xt)
		if !math.IsNaN(ft) && !math.IsInf(ft, 0) && ft <= f+armijo*dec {
			return ft, true
		}
	}
	return f, false
}

func resetIdentity(h []float64, n int) {
	for i := range h {
		h[i] = 0
	}
	for i := 0; i < n; i++ {
		h[i*n+i] = 1
	}
}

// bfgsUpdate applies the inverse BFGS update for step sv and gradient
// change yv, with sy = sv.yv > 0. hy is scratch.
func bfgsUpdate(h, sv, yv, hy []float64, sy float64) {
	n := len(sv)
	for i := 0; i < n; i++ {
		hy[i] = floats.Dot(h[i*n:(i+1)*n], yv)
	}
	rho := 1 / sy
	c := rho*rho*floats.Dot(yv, hy) + rho
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h[i*n+j] += c*sv[i]*sv[j] - rho*(hy[i]*sv[j]+sv[i]*hy[j])
		}
	}
}

// solveReduced minimises over the free variables of p.Reduction inside
// their bounds. Every iterate is completed, so the equality rows hold at
// each of them and the objective never rises above that of x0.
func (a *AugLag) solveReduced(ctx context.Context, p *Problem, x0 []float64, start time.Time) (*Result, error) {
	s := newReducedSearch(p)
	n := len(s.r.Free)

	z := make([]float64, n)
	for k, j := range s.r.Free {
		z[k] = x0[j] / s.scale[k]
	}
	s.project(z)
	x := append([]float64(nil), x0...)
	f := s.eval(z, x)
	g := make([]float64, n)
	s.grad(g, x)

	res := &Result{Status: IterationLimit}
	finish := func(status Status) (*Result, error) {
		res.X = x
		res.Objective = f
		res.Violation = p.MaxViolation(x)
		res.Status = status
		return res, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || !finite(x) || !finite(g) {
		res.Message = "non-finite start"
		return finish(Diverged)
	}

	gtol := math.Max(a.opts.Tolerance*math.Max(1, floats.Norm(g, math.Inf(1))), 1e-12)
	hinv := make([]float64, n*n)
	resetIdentity(hinv, n)
	fresh := true

	d := make([]float64, n)
	zt := make([]float64, n)
	gt := make([]float64, n)
	sv := make([]float64, n)
	yv := make([]float64, n)
	hy := make([]float64, n)
	xt := make([]float64, p.Dim)
	copy(xt, x)

	converged := false
	stall := 0
	for iter := 0; iter < reducedIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.opts.MaxTime > 0 && time.Since(start) >= a.opts.MaxTime {
			res.Message = "time budget spent"
			break
		}
		if a.opts.MaxEval > 0 && s.evals >= a.opts.MaxEval {
			res.Message = "evaluation budget spent"
			break
		}
		if s.bind(z, g) <= gtol {
			converged = true
			res.Message = "projected gradient below tolerance"
			break
		}

		slope := s.direction(d, hinv, g)
		if slope >= 0 && !fresh {
			resetIdentity(hinv, n)
			fresh = true
			slope = s.direction(d, hinv, g)
		}
		if slope >= 0 {
			converged = true
			res.Message = "no descent direction"
			break
		}
		if fresh {
			if m := floats.Norm(d, math.Inf(1)); m > 1 {
				floats.Scale(1/m, d)
			}
		}

		ft, ok := s.lineSearch(z, d, g, f, zt, xt)
		if !ok {
			if fresh {
				converged = true
				res.Message = "line search stalled"
				break
			}
			resetIdentity(hinv, n)
			fresh = true
			continue
		}
		s.grad(gt, xt)
		if !finite(gt) {
			res.Message = "non-finite gradient"
			return finish(Diverged)
		}
		res.Iterations++

		floats.SubTo(sv, zt, z)
		floats.SubTo(yv, gt, g)
		if sy := floats.Dot(sv, yv); sy > 1e-10*floats.Norm(sv, 2)*floats.Norm(yv, 2) {
			if fresh {
				gamma := sy / floats.Dot(yv, yv)
				for i := 0; i < n; i++ {
					hinv[i*n+i] = gamma
				}
				fresh = false
			}
			bfgsUpdate(hinv, sv, yv, hy, sy)
		}

		if f-ft <= 1e-14*math.Max(1, math.Abs(f)) {
			stall++
		} else {
			stall = 0
		}
		copy(z, zt)
		copy(x, xt)
		copy(g, gt)
		f = ft
		if stall >= stallIterations {
			converged = true
			res.Message = "objective stalled"
			break
		}
	}

	res.X = x
	res.Objective = f
	res.Violation = p.MaxViolation(x)
	switch {
	case converged:
		res.Status = classify(a.opts, res.Violation)
	case res.Violation <= a.opts.AcceptableTol:
		res.Status = Acceptable
	default:
		res.Status = Infeasible
	}
	return res, nil
}
