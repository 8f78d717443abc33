//go:build nlopt

package nlp

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// SLSQP wraps NLopt's LD_SLSQP. Constraint rows are split into NLopt
// equality and inequality groups, each evaluated from one cached g(x).
type SLSQP struct {
	opts Options
}

func newSLSQP(opts Options) (Solver, error) {
	return &SLSQP{opts: opts}, nil
}

func (s *SLSQP) Name() string { return "slsqp" }

type rowSplit struct {
	eq     []int
	ineqLo []int
	ineqHi []int
}

func splitRows(p *Problem) rowSplit {
	var rs rowSplit
	for i := range p.ConstraintLower {
		lo, hi := p.ConstraintLower[i], p.ConstraintUpper[i]
		if lo == hi {
			rs.eq = append(rs.eq, i)
			continue
		}
		if lo > -Unbounded {
			rs.ineqLo = append(rs.ineqLo, i)
		}
		if hi < Unbounded {
			rs.ineqHi = append(rs.ineqHi, i)
		}
	}
	return rs
}

// evalCache holds g and its Jacobian at the last x NLopt asked about.
type evalCache struct {
	p     *Problem
	x     []float64
	g     []float64
	jac   []float64
	valid bool
	hasJ  bool
}

func (c *evalCache) at(x []float64, needJac bool) {
	same := c.valid
	if same {
		for i := range x {
			if x[i] != c.x[i] {
				same = false
				break
			}
		}
	}
	if !same {
		copy(c.x, x)
		c.p.Constraints(c.g, c.x)
		c.valid = true
		c.hasJ = false
	}
	if needJac && !c.hasJ {
		c.p.Jacobian(c.jac, c.x)
		c.hasJ = true
	}
}

func (s *SLSQP) Solve(ctx context.Context, p *Problem, x0 []float64) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n, m := p.Dim, p.NumConstraints()

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	cache := &evalCache{
		p:   p,
		x:   make([]float64, n),
		g:   make([]float64, m),
		jac: make([]float64, m*n),
	}

	evals := 0
	var best []float64
	bestF, bestViol := math.Inf(1), math.Inf(1)

	objective := func(x, gradient []float64) float64 {
		evals++
		f := p.Objective(x)
		if len(gradient) > 0 {
			p.Gradient(gradient, x)
		}

		viol := 0.0
		if m > 0 {
			cache.at(x, false)
			for i, v := range cache.g {
				viol = math.Max(viol, excess(v, p.ConstraintLower[i], p.ConstraintUpper[i]))
			}
		}
		if better(f, viol, bestF, bestViol, s.opts.FeasibilityTol) {
			best = append(best[:0], x...)
			bestF, bestViol = f, viol
		}

		if ctx.Err() != nil {
			_ = opt.ForceStop()
		}
		return f
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], upper[i] = clampBound(p.Lower[i]), clampBound(p.Upper[i])
	}

	tol := s.opts.Tolerance
	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetFtolRel(tol),
		opt.SetXtolRel(tol),
		opt.SetMaxEval(s.opts.MaxEval),
	)
	if s.opts.MaxTime > 0 {
		err = multierr.Combine(err, opt.SetMaxTime(s.opts.MaxTime.Seconds()))
	}

	rows := splitRows(p)
	if len(rows.eq) > 0 {
		err = multierr.Combine(err, opt.AddEqualityMConstraint(
			s.rowFunc(cache, rows.eq, nil, 1),
			fill(len(rows.eq), s.opts.FeasibilityTol/10),
		))
	}
	if len(rows.ineqLo)+len(rows.ineqHi) > 0 {
		err = multierr.Combine(err, opt.AddInequalityMConstraint(
			s.inequalityFunc(cache, rows),
			fill(len(rows.ineqLo)+len(rows.ineqHi), s.opts.FeasibilityTol/10),
		))
	}
	if err != nil {
		return nil, errors.Wrap(err, "nlopt setup error")
	}

	start := append([]float64(nil), x0...)
	for i := range start {
		start[i] = math.Min(math.Max(start[i], lower[i]), upper[i])
	}

	x, f, optErr := opt.Optimize(start)
	status := opt.LastStatus()

	if ctx.Err() != nil {
		return nil, multierr.Combine(ctx.Err(), optErr)
	}

	res := &Result{Iterations: evals, Message: status}
	if x == nil {
		// NLopt drops the iterate on negative return codes
		x, f = best, bestF
	}
	if x == nil {
		res.Status = Failed
		return res, nil
	}
	res.X = x
	res.Objective = f
	res.Violation = p.MaxViolation(x)

	switch {
	case !finite(x) || math.IsNaN(f):
		res.Status = Diverged
	case status == "SUCCESS" || status == "FTOL_REACHED" || status == "XTOL_REACHED" || status == "STOPVAL_REACHED":
		res.Status = classify(s.opts, res.Violation)
	case status == "ROUNDOFF_LIMITED":
		if res.Violation <= s.opts.AcceptableTol {
			res.Status = Acceptable
		} else {
			res.Status = Failed
		}
	case status == "MAXEVAL_REACHED" || status == "MAXTIME_REACHED":
		if res.Violation <= s.opts.FeasibilityTol {
			res.Status = Acceptable
		} else {
			res.Status = IterationLimit
		}
	default:
		res.Status = Failed
	}
	return res, nil
}

// rowFunc evaluates sign*(g_i(x) - offset_i) for the selected rows.
func (s *SLSQP) rowFunc(cache *evalCache, rows []int, offset []float64, sign float64) nlopt.Mfunc {
	p := cache.p
	n := p.Dim
	return func(result, x, gradient []float64) {
		cache.at(x, len(gradient) > 0)
		for k, i := range rows {
			off := p.ConstraintLower[i]
			if offset != nil {
				off = offset[k]
			}
			result[k] = sign * (cache.g[i] - off)
			if len(gradient) > 0 {
				for j := 0; j < n; j++ {
					gradient[k*n+j] = sign * cache.jac[i*n+j]
				}
			}
		}
	}
}

// inequalityFunc stacks lo - g <= 0 rows followed by g - hi <= 0 rows.
func (s *SLSQP) inequalityFunc(cache *evalCache, rows rowSplit) nlopt.Mfunc {
	p := cache.p
	n := p.Dim
	lo := make([]float64, len(rows.ineqLo))
	for k, i := range rows.ineqLo {
		lo[k] = p.ConstraintLower[i]
	}
	hi := make([]float64, len(rows.ineqHi))
	for k, i := range rows.ineqHi {
		hi[k] = p.ConstraintUpper[i]
	}
	lower := s.rowFunc(cache, rows.ineqLo, lo, -1)
	upper := s.rowFunc(cache, rows.ineqHi, hi, 1)
	nl := len(rows.ineqLo)

	return func(result, x, gradient []float64) {
		var gl, gu []float64
		if len(gradient) > 0 {
			gl, gu = gradient[:nl*n], gradient[nl*n:]
		}
		lower(result[:nl], x, gl)
		upper(result[nl:], x, gu)
	}
}

func clampBound(b float64) float64 {
	if b >= Unbounded {
		return math.Inf(1)
	}
	if b <= -Unbounded {
		return math.Inf(-1)
	}
	return b
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
