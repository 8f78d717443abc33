package mpc

import (
	"math"
	"testing"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

func TestDelayZeroLatencyIsIdentity(t *testing.T) {
	d := NewDelayCompensator(0, 2.67)
	poses := []dynamo.Pose{
		{X: 1, Y: 2, Psi: 0.3, V: 10},
		{X: -100, Y: 40, Psi: 3.5, V: 0},
		{X: 0, Y: 0, Psi: -math.Pi, V: 25},
	}
	for _, p := range poses {
		got := d.Project(p, dynamo.Actuation{Delta: 0.2, Accel: 1})
		if got != p {
			t.Errorf("expected %+v unchanged, got %+v", p, got)
		}
	}
}

func TestDelayMatchesWireFormula(t *testing.T) {
	const (
		lf       = 2.67
		latency  = 0.1
		maxSteer = 25 * math.Pi / 180
	)
	d := NewDelayCompensator(latency, lf)

	tests := []struct {
		name string
		pose dynamo.Pose
		cmd  dynamo.Command
	}{
		{"straight", dynamo.Pose{X: 0, Y: 0, Psi: 0, V: 10}, dynamo.Command{}},
		{"right turn", dynamo.Pose{X: 5, Y: -3, Psi: 1.2, V: 20}, dynamo.Command{Steering: 0.4, Throttle: 0.5}},
		{"left turn braking", dynamo.Pose{X: -7, Y: 9, Psi: -2, V: 15}, dynamo.Command{Steering: -0.8, Throttle: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c := tt.pose, tt.cmd
			want := dynamo.Pose{
				X:   p.X + p.V*math.Cos(p.Psi)*latency,
				Y:   p.Y + p.V*math.Sin(p.Psi)*latency,
				Psi: dynamo.NormalizeAngle(p.Psi - p.V*c.Steering*maxSteer*latency/lf),
				V:   p.V + c.Throttle*latency,
			}

			got := d.Project(p, c.Actuation(maxSteer))
			if math.Abs(got.X-want.X) > 1e-12 || math.Abs(got.Y-want.Y) > 1e-12 ||
				math.Abs(got.Psi-want.Psi) > 1e-12 || math.Abs(got.V-want.V) > 1e-12 {
				t.Errorf("expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestDelayNormalizesHeading(t *testing.T) {
	d := NewDelayCompensator(0.5, 1)
	got := d.Project(dynamo.Pose{Psi: math.Pi - 0.01, V: 10}, dynamo.Actuation{Delta: 0.4})
	if got.Psi <= -math.Pi || got.Psi > math.Pi {
		t.Errorf("heading %f outside (-pi, pi]", got.Psi)
	}
	if got.Psi > 0 {
		t.Errorf("expected heading to wrap negative, got %f", got.Psi)
	}
}
