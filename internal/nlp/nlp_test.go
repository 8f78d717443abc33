package nlp

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func unbounded(n int) (lo, hi []float64) {
	lo = make([]float64, n)
	hi = make([]float64, n)
	for i := range lo {
		lo[i], hi[i] = -Unbounded, Unbounded
	}
	return lo, hi
}

// min (x0-1)^2 + (x1-2)^2 subject to x0 + x1 = 1, optimum (0, 1).
func linearEquality() *Problem {
	lo, hi := unbounded(2)
	return &Problem{
		Dim: 2, Lower: lo, Upper: hi,
		ConstraintLower: []float64{1},
		ConstraintUpper: []float64{1},
		Objective: func(x []float64) float64 {
			return (x[0]-1)*(x[0]-1) + (x[1]-2)*(x[1]-2)
		},
		Gradient: func(grad, x []float64) {
			grad[0] = 2 * (x[0] - 1)
			grad[1] = 2 * (x[1] - 2)
		},
		Constraints: func(g, x []float64) { g[0] = x[0] + x[1] },
		Jacobian: func(jac, x []float64) {
			jac[0], jac[1] = 1, 1
		},
		LagrangianHessian: func(hess *mat.SymDense, x, lambda []float64, sigma float64) {
			hess.SetSym(0, 0, 2*sigma)
			hess.SetSym(1, 1, 2*sigma)
			hess.SetSym(0, 1, 0)
		},
	}
}

// min x0 + x1 on the circle of radius sqrt(2), optimum (-1, -1).
func circle() *Problem {
	lo, hi := unbounded(2)
	return &Problem{
		Dim: 2, Lower: lo, Upper: hi,
		ConstraintLower: []float64{2},
		ConstraintUpper: []float64{2},
		Objective:       func(x []float64) float64 { return x[0] + x[1] },
		Gradient: func(grad, x []float64) {
			grad[0], grad[1] = 1, 1
		},
		Constraints: func(g, x []float64) { g[0] = x[0]*x[0] + x[1]*x[1] },
		Jacobian: func(jac, x []float64) {
			jac[0], jac[1] = 2*x[0], 2*x[1]
		},
		LagrangianHessian: func(hess *mat.SymDense, x, lambda []float64, sigma float64) {
			hess.SetSym(0, 0, 2*lambda[0])
			hess.SetSym(1, 1, 2*lambda[0])
			hess.SetSym(0, 1, 0)
		},
	}
}

func assertPoint(t *testing.T, res *Result, want []float64, tol float64) {
	t.Helper()
	if !res.Status.OK() {
		t.Fatalf("expected usable status, got %s (%s)", res.Status, res.Message)
	}
	for i := range want {
		if math.Abs(res.X[i]-want[i]) > tol {
			t.Errorf("x[%d]: expected %f, got %f", i, want[i], res.X[i])
		}
	}
}

func TestAugLagLinearEquality(t *testing.T) {
	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), linearEquality(), []float64{5, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPoint(t, res, []float64{0, 1}, 1e-6)
	if res.Violation > 1e-6 {
		t.Errorf("expected feasible point, violation %g", res.Violation)
	}
}

func TestAugLagNonlinearEquality(t *testing.T) {
	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), circle(), []float64{-0.5, -1.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPoint(t, res, []float64{-1, -1}, 1e-5)
}

func TestAugLagVariableBounds(t *testing.T) {
	p := &Problem{
		Dim:       1,
		Lower:     []float64{0},
		Upper:     []float64{1},
		Objective: func(x []float64) float64 { return (x[0] - 3) * (x[0] - 3) },
		Gradient:  func(grad, x []float64) { grad[0] = 2 * (x[0] - 3) },
	}

	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), p, []float64{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPoint(t, res, []float64{1}, 1e-5)
}

func TestAugLagInequalityRow(t *testing.T) {
	lo, hi := unbounded(2)
	p := &Problem{
		Dim: 2, Lower: lo, Upper: hi,
		ConstraintLower: []float64{1},
		ConstraintUpper: []float64{Unbounded},
		Objective:       func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		Gradient: func(grad, x []float64) {
			grad[0], grad[1] = 2*x[0], 2*x[1]
		},
		Constraints: func(g, x []float64) { g[0] = x[0] + x[1] },
		Jacobian: func(jac, x []float64) {
			jac[0], jac[1] = 1, 1
		},
		LagrangianHessian: func(hess *mat.SymDense, x, lambda []float64, sigma float64) {
			hess.SetSym(0, 0, 2*sigma)
			hess.SetSym(1, 1, 2*sigma)
			hess.SetSym(0, 1, 0)
		},
	}

	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), p, []float64{3, -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPoint(t, res, []float64{0.5, 0.5}, 1e-5)
}

func TestAugLagInfeasible(t *testing.T) {
	lo, hi := unbounded(1)
	p := &Problem{
		Dim: 1, Lower: lo, Upper: hi,
		ConstraintLower: []float64{1, 2},
		ConstraintUpper: []float64{1, 2},
		Objective:       func(x []float64) float64 { return 0 },
		Gradient:        func(grad, x []float64) { grad[0] = 0 },
		Constraints: func(g, x []float64) {
			g[0], g[1] = x[0], x[0]
		},
		Jacobian: func(jac, x []float64) {
			jac[0], jac[1] = 1, 1
		},
		LagrangianHessian: func(hess *mat.SymDense, x, lambda []float64, sigma float64) {
			hess.SetSym(0, 0, 0)
		},
	}

	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), p, []float64{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.OK() {
		t.Errorf("expected failure status, got %s", res.Status)
	}
	if res.Violation < 0.4 {
		t.Errorf("expected violation near 0.5, got %g", res.Violation)
	}
}

func TestAugLagKeepsFeasibleStart(t *testing.T) {
	s := NewAugLag(DefaultOptions())
	s.Penalty = 1e-3
	s.MaxOuter = 1

	// a weak penalty pulls the first pass off the circle
	x0 := []float64{0, -math.Sqrt2}
	res, err := s.Solve(context.Background(), circle(), x0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Status.OK() {
		t.Fatalf("expected the feasible start to be usable, got %s", res.Status)
	}
	if res.X[0] != x0[0] || res.X[1] != x0[1] {
		t.Errorf("expected the start point back, got %v", res.X)
	}
	if res.Violation > 1e-9 {
		t.Errorf("expected feasible result, violation %g", res.Violation)
	}
}

// min (s-4)^2 with s = u^2 and lo <= u <= hi; the state s is completed from u.
func shooting(lo, hi float64) *Problem {
	return &Problem{
		Dim:             2,
		Lower:           []float64{lo, -Unbounded},
		Upper:           []float64{hi, Unbounded},
		ConstraintLower: []float64{0},
		ConstraintUpper: []float64{0},
		Objective:       func(x []float64) float64 { return (x[1] - 4) * (x[1] - 4) },
		Gradient: func(grad, x []float64) {
			grad[0], grad[1] = 0, 2*(x[1]-4)
		},
		Constraints: func(g, x []float64) { g[0] = x[1] - x[0]*x[0] },
		Jacobian: func(jac, x []float64) {
			jac[0], jac[1] = -2*x[0], 1
		},
		Reduction: &Reduction{
			Free:     []int{0},
			Complete: func(x []float64) { x[1] = x[0] * x[0] },
			Gradient: func(grad, x []float64) { grad[0] = 4 * x[0] * (x[1] - 4) },
		},
	}
}

func TestReducedInterior(t *testing.T) {
	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), shooting(0, 3), []float64{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPoint(t, res, []float64{2, 4}, 1e-5)
	if res.Violation != 0 {
		t.Errorf("expected completed point to be exact, violation %g", res.Violation)
	}
}

func TestReducedBound(t *testing.T) {
	s := NewAugLag(DefaultOptions())
	res, err := s.Solve(context.Background(), shooting(0, 1.5), []float64{0.5, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Solved {
		t.Fatalf("expected solved, got %s (%s)", res.Status, res.Message)
	}
	if res.X[0] != 1.5 || res.X[1] != 2.25 {
		t.Errorf("expected the upper bound (1.5, 2.25), got %v", res.X)
	}
}

func TestReducedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewAugLag(DefaultOptions())
	if _, err := s.Solve(ctx, shooting(0, 3), []float64{1, 0}); err == nil {
		t.Error("expected context error")
	}
}

func TestReductionValidate(t *testing.T) {
	p := shooting(0, 3)
	p.Reduction.Free = []int{0, 0}
	if p.Validate() == nil {
		t.Error("expected repeated free variable error")
	}

	p = shooting(0, 3)
	p.Upper[1] = 10
	if p.Validate() == nil {
		t.Error("expected bounded dependent variable error")
	}

	p = shooting(0, 3)
	p.Reduction.Complete = nil
	if p.Validate() == nil {
		t.Error("expected missing complete error")
	}
}

func TestAugLagCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewAugLag(DefaultOptions())
	if _, err := s.Solve(ctx, linearEquality(), []float64{0, 0}); err == nil {
		t.Error("expected context error")
	}
}

func TestValidate(t *testing.T) {
	p := linearEquality()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := linearEquality()
	bad.Lower = bad.Lower[:1]
	if bad.Validate() == nil {
		t.Error("expected bounds length error")
	}

	bad = linearEquality()
	bad.Jacobian = nil
	if bad.Validate() == nil {
		t.Error("expected missing jacobian error")
	}

	bad = linearEquality()
	bad.ConstraintLower = []float64{3}
	if bad.Validate() == nil {
		t.Error("expected crossed constraint bounds error")
	}
}

func TestMaxViolation(t *testing.T) {
	p := linearEquality()
	p.Lower[0] = 0

	if v := p.MaxViolation([]float64{0.5, 0.5}); v != 0 {
		t.Errorf("expected feasible point, got %g", v)
	}
	if v := p.MaxViolation([]float64{-2, 3}); math.Abs(v-2) > 1e-12 {
		t.Errorf("expected bound violation 2, got %g", v)
	}
	if v := p.MaxViolation([]float64{1, 3}); math.Abs(v-3) > 1e-12 {
		t.Errorf("expected constraint violation 3, got %g", v)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		name   string
		ok     bool
	}{
		{Solved, "solved", true},
		{Acceptable, "acceptable", true},
		{Infeasible, "infeasible", false},
		{Diverged, "diverged", false},
		{IterationLimit, "iteration_limit", false},
		{Failed, "failed", false},
	}
	for _, tt := range tests {
		if tt.status.String() != tt.name {
			t.Errorf("expected %s, got %s", tt.name, tt.status)
		}
		if tt.status.OK() != tt.ok {
			t.Errorf("%s: expected OK()=%v", tt.name, tt.ok)
		}
	}
}

func TestBetter(t *testing.T) {
	if !better(10, 0, 1, 1, 1e-6) {
		t.Error("feasible point should beat infeasible incumbent")
	}
	if better(0, 1, 10, 0, 1e-6) {
		t.Error("infeasible point should not beat feasible incumbent")
	}
	if !better(1, 0, 2, 0, 1e-6) {
		t.Error("lower objective should win among feasible points")
	}
	if !better(5, 0.1, 1, 0.2, 1e-6) {
		t.Error("lower violation should win among infeasible points")
	}
}

func TestNewBackend(t *testing.T) {
	s, err := New("auglag", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "auglag" {
		t.Errorf("expected auglag, got %s", s.Name())
	}
	if _, err := New("ipopt", DefaultOptions()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
