package mpc

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/polyfit"
)

func testParams() Params {
	return ParamsFromConfig(config.DefaultConfig())
}

func curvedProblem() *problem {
	ref := polyfit.Poly{0.8, 0.15, -0.004, 0.0001}
	init := InitialState(18, ref)
	return newProblem(testParams(), NewLayout(10), init, ref)
}

// perturbedPoint jitters the initial guess so derivatives are checked away
// from the dynamically consistent trajectory.
func perturbedPoint(p *problem, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := p.initialGuess()
	for i := range x {
		x[i] += 0.1 * (rng.Float64() - 0.5)
	}
	return x
}

func TestInitialGuessIsFeasible(t *testing.T) {
	p := curvedProblem()
	x := p.initialGuess()
	if v := p.nlp().MaxViolation(x); v > 1e-12 {
		t.Errorf("expected consistent initial guess, violation %g", v)
	}

	vars := p.layout.View(x)
	for i := range vars.Delta {
		if vars.Delta[i] != 0 || vars.A[i] != 0 {
			t.Fatal("expected zero controls in initial guess")
		}
	}
	if vars.V[9] != 18 {
		t.Errorf("expected constant speed under zero throttle, got %f", vars.V[9])
	}
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	p := curvedProblem()
	x := perturbedPoint(p, 1)

	got := make([]float64, len(x))
	p.gradient(got, x)
	want := fd.Gradient(nil, p.objective, x, &fd.Settings{Formula: fd.Central})

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-4*math.Max(1, math.Abs(want[i])) {
			t.Errorf("gradient[%d]: expected %g, got %g", i, want[i], got[i])
		}
	}
}

func TestJacobianMatchesFiniteDifference(t *testing.T) {
	p := curvedProblem()
	n, m := p.layout.NumVars(), p.layout.NumConstraints()

	for _, seed := range []int64{2, 3} {
		x := perturbedPoint(p, seed)

		got := make([]float64, m*n)
		p.jacobian(got, x)

		want := mat.NewDense(m, n, nil)
		fd.Jacobian(want, p.constraints, x, &fd.JacobianSettings{Formula: fd.Central})

		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				w := want.At(i, j)
				if math.Abs(got[i*n+j]-w) > 1e-6*math.Max(1, math.Abs(w)) {
					t.Fatalf("seed %d jac[%d][%d]: expected %g, got %g", seed, i, j, w, got[i*n+j])
				}
			}
		}
	}
}

func TestControlGradientMatchesFiniteDifference(t *testing.T) {
	p := curvedProblem()
	free := p.controls()
	rng := rand.New(rand.NewSource(4))

	u := make([]float64, len(free))
	for i := range u {
		u[i] = 0.3 * (2*rng.Float64() - 1)
	}
	cost := func(u []float64) float64 {
		x := make([]float64, p.layout.NumVars())
		for i, j := range free {
			x[j] = u[i]
		}
		p.rollout(x)
		return p.objective(x)
	}

	x := make([]float64, p.layout.NumVars())
	for i, j := range free {
		x[j] = u[i]
	}
	p.rollout(x)
	got := make([]float64, len(free))
	p.controlGradient(got, x)

	want := fd.Gradient(nil, cost, u, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-4*math.Max(1, math.Abs(want[i])) {
			t.Errorf("control gradient[%d]: expected %g, got %g", i, want[i], got[i])
		}
	}
}

func TestRolloutSatisfiesConstraints(t *testing.T) {
	p := curvedProblem()
	x := perturbedPoint(p, 6)
	p.rollout(x)

	if v := p.nlp().MaxViolation(x); v > 1e-12 {
		t.Errorf("expected rolled out point to be feasible, violation %g", v)
	}
	if x[p.layout.V.At(0)] != 18 {
		t.Errorf("expected pinned initial speed, got %f", x[p.layout.V.At(0)])
	}
}

func TestControlsAreFree(t *testing.T) {
	p := curvedProblem()
	free := p.controls()
	l := p.layout
	if len(free) != 2*(l.Steps-1) {
		t.Fatalf("expected %d free controls, got %d", 2*(l.Steps-1), len(free))
	}
	if free[0] != l.Delta.At(0) || free[l.Delta.Len] != l.A.At(0) {
		t.Errorf("expected deltas then throttles, got %v", free)
	}
	if err := p.nlp().Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestPinRows(t *testing.T) {
	init := dynamo.VehicleState{V: 7, CTE: -0.5, EPsi: 0.1}
	p := newProblem(testParams(), NewLayout(10), init, polyfit.Poly{-0.5, -0.1, 0, 0})

	lo, hi := p.constraintBounds()
	l := p.layout
	if lo[l.Row(kindV, 0)] != 7 || hi[l.Row(kindV, 0)] != 7 {
		t.Error("speed should be pinned to the initial value")
	}
	if lo[l.Row(kindCTE, 0)] != -0.5 || lo[l.Row(kindEPsi, 0)] != 0.1 {
		t.Error("errors should be pinned to the initial values")
	}
	for k := 0; k < numStateKinds; k++ {
		for t0 := 1; t0 < l.Steps; t0++ {
			if lo[l.Row(k, t0)] != 0 || hi[l.Row(k, t0)] != 0 {
				t.Fatalf("transition row (%d, %d) should be an equality to zero", k, t0)
			}
		}
	}
}

func TestControlBounds(t *testing.T) {
	p := curvedProblem()
	lo, hi := p.bounds()
	l := p.layout
	maxSteer := testParams().MaxSteer

	for i := 0; i < l.Delta.Len; i++ {
		if lo[l.Delta.At(i)] != -maxSteer || hi[l.Delta.At(i)] != maxSteer {
			t.Fatalf("delta %d: unexpected bounds [%g, %g]", i, lo[l.Delta.At(i)], hi[l.Delta.At(i)])
		}
		if lo[l.A.At(i)] != -1 || hi[l.A.At(i)] != 1 {
			t.Fatalf("a %d: unexpected bounds [%g, %g]", i, lo[l.A.At(i)], hi[l.A.At(i)])
		}
	}
	if lo[l.X.At(3)] > -1e18 || hi[l.V.At(3)] < 1e18 {
		t.Error("states should be effectively unbounded")
	}
}

func TestObjectiveTerms(t *testing.T) {
	params := testParams()
	params.Weights = Weights{SteerRate: 1}
	l := NewLayout(4)
	p := newProblem(params, l, dynamo.VehicleState{}, polyfit.Poly{0})

	x := make([]float64, l.NumVars())
	v := l.View(x)
	v.Delta[0], v.Delta[1], v.Delta[2] = 0, 1, 3

	// (1-0)^2 + (3-1)^2
	if got := p.objective(x); got != 5 {
		t.Errorf("expected steering rate cost 5, got %f", got)
	}
}
