package nlp

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const maxPenalty = 1e8

// AugLag is a Powell-Hestenes-Rockafellar augmented Lagrangian method.
// Each outer iteration minimises the augmented Lagrangian with gonum's
// Newton method (or LBFGS when no Lagrangian Hessian is supplied), then
// updates the multipliers and, if feasibility stalls, the penalty. The best
// point seen, x0 included, is returned.
//
// A problem whose equality rows are covered by a Reduction skips the
// penalty altogether and is solved over its free variables; see
// solveReduced.
type AugLag struct {
	opts Options

	// Penalty is the initial penalty parameter.
	Penalty  float64
	MaxOuter int
}

func NewAugLag(opts Options) *AugLag {
	return &AugLag{opts: opts, Penalty: 100, MaxOuter: 40}
}

func (a *AugLag) Name() string { return "auglag" }

// inequality is h(x) = sign*(v - bound) <= 0, where v is g[index] or x[index].
type inequality struct {
	index int
	sign  float64
	bound float64
}

type augState struct {
	p  *Problem
	n  int
	mu float64

	eq     []int
	ineq   []inequality
	bounds []inequality

	lambda []float64
	nu     []float64
	nuVar  []float64

	g   []float64
	jac []float64
	w   []float64
}

func newAugState(p *Problem, mu float64) *augState {
	s := &augState{p: p, n: p.Dim, mu: mu}
	for i := range p.ConstraintLower {
		lo, hi := p.ConstraintLower[i], p.ConstraintUpper[i]
		if lo == hi {
			s.eq = append(s.eq, i)
			continue
		}
		if lo > -Unbounded {
			s.ineq = append(s.ineq, inequality{i, -1, lo})
		}
		if hi < Unbounded {
			s.ineq = append(s.ineq, inequality{i, 1, hi})
		}
	}
	for j := 0; j < p.Dim; j++ {
		if p.Lower[j] > -Unbounded {
			s.bounds = append(s.bounds, inequality{j, -1, p.Lower[j]})
		}
		if p.Upper[j] < Unbounded {
			s.bounds = append(s.bounds, inequality{j, 1, p.Upper[j]})
		}
	}
	m := p.NumConstraints()
	s.lambda = make([]float64, len(s.eq))
	s.nu = make([]float64, len(s.ineq))
	s.nuVar = make([]float64, len(s.bounds))
	s.g = make([]float64, m)
	s.jac = make([]float64, m*p.Dim)
	s.w = make([]float64, m)
	return s
}

func (s *augState) constraints(x []float64) {
	if len(s.g) > 0 {
		s.p.Constraints(s.g, x)
	}
}

func (s *augState) jacobian(x []float64) {
	if len(s.g) > 0 {
		s.p.Jacobian(s.jac, x)
	}
}

func (s *augState) eqResidual(k int) float64 {
	i := s.eq[k]
	return s.g[i] - s.p.ConstraintLower[i]
}

func (s *augState) ineqValue(in inequality) float64 {
	return in.sign * (s.g[in.index] - in.bound)
}

func boundValue(in inequality, x []float64) float64 {
	return in.sign * (x[in.index] - in.bound)
}

func (s *augState) value(x []float64) float64 {
	s.constraints(x)
	f := s.p.Objective(x)
	for k := range s.eq {
		c := s.eqResidual(k)
		f += s.lambda[k]*c + 0.5*s.mu*c*c
	}
	for k, in := range s.ineq {
		f += s.shifted(s.nu[k], s.ineqValue(in))
	}
	for k, in := range s.bounds {
		f += s.shifted(s.nuVar[k], boundValue(in, x))
	}
	return f
}

func (s *augState) shifted(nu, h float64) float64 {
	t := math.Max(0, nu+s.mu*h)
	return (t*t - nu*nu) / (2 * s.mu)
}

// weights fills s.w with the multiplier estimate each constraint row carries
// in the augmented Lagrangian gradient.
func (s *augState) weights() {
	for i := range s.w {
		s.w[i] = 0
	}
	for k, i := range s.eq {
		s.w[i] += s.lambda[k] + s.mu*s.eqResidual(k)
	}
	for k, in := range s.ineq {
		s.w[in.index] += in.sign * math.Max(0, s.nu[k]+s.mu*s.ineqValue(in))
	}
}

func (s *augState) gradient(grad, x []float64) {
	s.constraints(x)
	s.jacobian(x)
	s.p.Gradient(grad, x)
	s.weights()
	n := s.n
	for i, w := range s.w {
		if w == 0 {
			continue
		}
		floats.AddScaled(grad, w, s.jac[i*n:(i+1)*n])
	}
	for k, in := range s.bounds {
		grad[in.index] += in.sign * math.Max(0, s.nuVar[k]+s.mu*boundValue(in, x))
	}
}

func (s *augState) hessian(hess *mat.SymDense, x []float64) {
	s.constraints(x)
	s.jacobian(x)
	s.weights()
	hess.Zero()
	s.p.LagrangianHessian(hess, x, s.w, 1)

	n := s.n
	addOuter := func(row []float64) {
		for i := 0; i < n; i++ {
			if row[i] == 0 {
				continue
			}
			for j := i; j < n; j++ {
				if row[j] != 0 {
					hess.SetSym(i, j, hess.At(i, j)+s.mu*row[i]*row[j])
				}
			}
		}
	}
	for _, i := range s.eq {
		addOuter(s.jac[i*n : (i+1)*n])
	}
	for k, in := range s.ineq {
		if s.nu[k]+s.mu*s.ineqValue(in) > 0 {
			addOuter(s.jac[in.index*n : (in.index+1)*n])
		}
	}
	for k, in := range s.bounds {
		if s.nuVar[k]+s.mu*boundValue(in, x) > 0 {
			j := in.index
			hess.SetSym(j, j, hess.At(j, j)+s.mu)
		}
	}
}

// violation is the largest equality residual or positive inequality value.
func (s *augState) violation(x []float64) float64 {
	s.constraints(x)
	worst := 0.0
	for k := range s.eq {
		worst = math.Max(worst, math.Abs(s.eqResidual(k)))
	}
	for _, in := range s.ineq {
		worst = math.Max(worst, s.ineqValue(in))
	}
	for _, in := range s.bounds {
		worst = math.Max(worst, boundValue(in, x))
	}
	return worst
}

func (s *augState) updateMultipliers(x []float64) {
	s.constraints(x)
	for k := range s.eq {
		s.lambda[k] += s.mu * s.eqResidual(k)
	}
	for k, in := range s.ineq {
		s.nu[k] = math.Max(0, s.nu[k]+s.mu*s.ineqValue(in))
	}
	for k, in := range s.bounds {
		s.nuVar[k] = math.Max(0, s.nuVar[k]+s.mu*boundValue(in, x))
	}
}

// estimateMultipliers sets the equality multipliers to the least-squares
// solution of grad f + J_eq^T lambda = 0.
func (s *augState) estimateMultipliers(x []float64) {
	me, n := len(s.eq), s.n
	if me == 0 || me > n {
		return
	}
	s.jacobian(x)
	a := mat.NewDense(n, me, nil)
	for k, i := range s.eq {
		for j := 0; j < n; j++ {
			a.Set(j, k, s.jac[i*n+j])
		}
	}
	grad := make([]float64, n)
	s.p.Gradient(grad, x)
	floats.Scale(-1, grad)

	var qr mat.QR
	qr.Factorize(a)
	var lambda mat.VecDense
	if err := qr.SolveVecTo(&lambda, false, mat.NewVecDense(n, grad)); err != nil {
		return
	}
	for k := range s.lambda {
		s.lambda[k] = lambda.AtVec(k)
	}
}

func (a *AugLag) Solve(ctx context.Context, p *Problem, x0 []float64) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	if p.reducible() {
		return a.solveReduced(ctx, p, x0, start)
	}
	mu := a.Penalty
	if mu <= 0 {
		mu = 100
	}
	s := newAugState(p, mu)

	x := append([]float64(nil), x0...)
	s.estimateMultipliers(x)

	g0 := make([]float64, p.Dim)
	p.Gradient(g0, x)
	gradTol := math.Max(a.opts.Tolerance*math.Max(1, floats.Norm(g0, math.Inf(1))), 1e-12)

	problem := optimize.Problem{
		Func: s.value,
		Grad: s.gradient,
	}
	var method optimize.Method = &optimize.LBFGS{}
	if p.LagrangianHessian != nil {
		problem.Hess = s.hessian
		method = &optimize.Newton{GradStopThreshold: gradTol}
	}

	res := &Result{Status: IterationLimit}
	prevViol := s.violation(x)
	evals := 0

	best := append([]float64(nil), x...)
	bestF, bestViol := p.Objective(x), p.MaxViolation(x)
	if math.IsNaN(bestF) {
		bestF = math.Inf(1)
	}
	track := func() {
		f, viol := p.Objective(x), p.MaxViolation(x)
		if !math.IsNaN(f) && better(f, viol, bestF, bestViol, a.opts.FeasibilityTol) {
			copy(best, x)
			bestF, bestViol = f, viol
		}
	}

	for outer := 0; outer < a.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		settings := &optimize.Settings{
			GradientThreshold: gradTol,
			MajorIterations:   200,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Relative:   1e-14,
				Iterations: 20,
			},
		}
		if a.opts.MaxTime > 0 {
			remaining := a.opts.MaxTime - time.Since(start)
			if remaining <= 0 {
				break
			}
			settings.Runtime = remaining
		}

		inner, err := optimize.Minimize(problem, x, settings, method)
		if inner == nil {
			res.Status = Failed
			if err != nil {
				res.Message = err.Error()
			}
			break
		}
		res.Iterations += inner.Stats.MajorIterations
		evals += inner.Stats.FuncEvaluations
		if !finite(inner.X) {
			res.Status = Diverged
			res.Message = "non-finite iterate"
			break
		}
		copy(x, inner.X)
		track()

		viol := s.violation(x)
		s.updateMultipliers(x)

		stationary := inner.Status != optimize.IterationLimit && inner.Status != optimize.RuntimeLimit
		if viol <= a.opts.FeasibilityTol && stationary {
			res.Status = Solved
			res.Message = inner.Status.String()
			break
		}
		if a.opts.MaxEval > 0 && evals >= a.opts.MaxEval {
			break
		}
		if viol > 0.25*prevViol {
			s.mu = math.Min(s.mu*10, maxPenalty)
		}
		prevViol = viol
	}

	res.X = best
	res.Objective = bestF
	res.Violation = bestViol
	switch res.Status {
	case Solved:
		res.Status = classify(a.opts, res.Violation)
	case IterationLimit, Diverged, Failed:
		switch {
		case res.Violation <= a.opts.AcceptableTol:
			res.Status = Acceptable
		case res.Status == IterationLimit && s.mu >= maxPenalty:
			res.Status = Infeasible
		}
	}
	if math.IsNaN(res.Objective) || math.IsInf(res.Objective, 0) {
		res.Status = Diverged
	}
	return res, nil
}
