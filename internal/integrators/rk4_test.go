package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/models"
)

type oscillator struct{}

func (o *oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (o *oscillator) StateDim() int   { return 2 }
func (o *oscillator) ControlDim() int { return 0 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &oscillator{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], expectedV)
	}
}

func TestEulerMatchesBicycleRecurrence(t *testing.T) {
	b := models.NewKinematicBicycle(models.DefaultLf)
	x := dynamo.State{1, 2, 0.3, 10}
	u := dynamo.Control{0.05, 0.2}
	dt := 0.1

	got := NewEuler().Step(b, x, u, 0, dt)
	want := dynamo.State{
		1 + 10*math.Cos(0.3)*dt,
		2 + 10*math.Sin(0.3)*dt,
		0.3 + 10*0.05/models.DefaultLf*dt,
		10 + 0.2*dt,
	}

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("component %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestRK4CircularArc(t *testing.T) {
	b := models.NewKinematicBicycle(2.0)
	delta := 0.2
	v := 5.0
	x := dynamo.State{0, 0, 0, v}
	u := dynamo.Control{delta, 0}

	radius := b.TurnRadius(delta)
	integ := NewRK4()
	dt := 0.01
	for i := 0; i < 500; i++ {
		x = integ.Step(b, x, u, float64(i)*dt, dt)
	}

	// center of the turning circle sits at (0, R) for a left turn from the origin
	dist := math.Hypot(x[0], x[1]-radius)
	if math.Abs(dist-radius) > 1e-6 {
		t.Errorf("expected to stay on circle of radius %f, got %f", radius, dist)
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range Names {
		if _, err := New(name); err != nil {
			t.Errorf("integrator %s: %v", name, err)
		}
	}
	if _, err := New("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := models.NewKinematicBicycle(models.DefaultLf)
	x := dynamo.State{0, 0, 0, 10}
	u := dynamo.Control{0.01, 0.1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := models.NewKinematicBicycle(models.DefaultLf)
	x := dynamo.State{0, 0, 0, 10}
	u := dynamo.Control{0.01, 0.1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}
