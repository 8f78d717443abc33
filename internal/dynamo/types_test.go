package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	sum := a.Add(b)
	if sum[0] != 5 || sum[1] != 7 || sum[2] != 9 {
		t.Errorf("Add failed: got %v", sum)
	}

	scaled := a.Scale(2)
	if scaled[0] != 2 || scaled[1] != 4 || scaled[2] != 6 {
		t.Errorf("Scale failed: got %v", scaled)
	}
}

func TestPoseVectorRoundTrip(t *testing.T) {
	p := Pose{X: 1, Y: -2, Psi: 0.3, V: 12}
	if got := PoseFromVector(p.Vector()); got != p {
		t.Errorf("expected %+v, got %+v", p, got)
	}
	if got := PoseFromVector(State{1}); got != (Pose{}) {
		t.Errorf("short vector should give zero pose, got %+v", got)
	}
}

func TestCommandActuationConversion(t *testing.T) {
	maxSteer := DegToRad(25)

	a := Actuation{Delta: 0.2, Accel: 0.5}
	c := a.Command(maxSteer)
	if c.Steering >= 0 {
		t.Errorf("counter-clockwise delta should give negative wire steering, got %f", c.Steering)
	}
	if math.Abs(c.Steering+0.2/maxSteer) > 1e-12 {
		t.Errorf("unexpected steering %f", c.Steering)
	}

	back := c.Actuation(maxSteer)
	if math.Abs(back.Delta-a.Delta) > 1e-12 || back.Accel != a.Accel {
		t.Errorf("round trip mismatch: %+v vs %+v", back, a)
	}

	full := Actuation{Delta: maxSteer}.Command(maxSteer)
	if math.Abs(full.Steering+1) > 1e-12 {
		t.Errorf("lock angle should map to -1, got %f", full.Steering)
	}
}

func TestSolveErrorIs(t *testing.T) {
	cause := errors.New("nlopt: ROUNDOFF_LIMITED")
	err := error(&SolveError{Status: "Diverged", Iterations: 12, Violation: 0.3, Wrapped: cause})

	if !errors.Is(err, ErrSolverFailed) {
		t.Error("SolveError should match ErrSolverFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("SolveError should match wrapped cause")
	}
	var se *SolveError
	if !errors.As(err, &se) || se.Status != "Diverged" {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestTickError(t *testing.T) {
	err := &TickError{Tick: 15, Time: 1.5, Wrapped: ErrInsufficientPoints}
	expected := "tick 15 (t=1.50): dynamo: not enough waypoints for curve fit"
	if err.Error() != expected {
		t.Errorf("TickError.Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Error("TickError should unwrap")
	}
}

func TestParallelFor(t *testing.T) {
	n := 1000
	out := make([]int, n)
	ParallelFor(n, 10, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = i * 2
		}
	})
	for i, v := range out {
		if v != i*2 {
			t.Fatalf("index %d not visited", i)
		}
	}
}
