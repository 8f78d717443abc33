package models

import (
	"math"
	"testing"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

func TestBicycleDims(t *testing.T) {
	b := NewKinematicBicycle(DefaultLf)
	if b.StateDim() != 4 {
		t.Errorf("expected 4 states, got %d", b.StateDim())
	}
	if b.ControlDim() != 2 {
		t.Errorf("expected 2 controls, got %d", b.ControlDim())
	}
}

func TestBicycleStraight(t *testing.T) {
	b := NewKinematicBicycle(DefaultLf)
	dx := b.Derive(dynamo.State{0, 0, 0, 10}, dynamo.Control{0, 0}, 0)

	if math.Abs(dx[0]-10) > 1e-12 || math.Abs(dx[1]) > 1e-12 {
		t.Errorf("expected motion along +x, got %v", dx)
	}
	if dx[2] != 0 || dx[3] != 0 {
		t.Errorf("expected no yaw or acceleration, got %v", dx)
	}
}

func TestBicycleSteeringSign(t *testing.T) {
	b := NewKinematicBicycle(DefaultLf)
	dx := b.Derive(dynamo.State{0, 0, 0, 10}, dynamo.Control{0.1, 0.5}, 0)

	if dx[2] <= 0 {
		t.Errorf("positive delta should increase heading, got %f", dx[2])
	}
	if math.Abs(dx[2]-b.YawRate(10, 0.1)) > 1e-12 {
		t.Errorf("yaw rate mismatch: %f", dx[2])
	}
	if dx[3] != 0.5 {
		t.Errorf("expected acceleration 0.5, got %f", dx[3])
	}
}

func TestBicycleHeading(t *testing.T) {
	b := NewKinematicBicycle(DefaultLf)
	dx := b.Derive(dynamo.State{0, 0, math.Pi / 2, 4}, nil, 0)
	if math.Abs(dx[0]) > 1e-12 || math.Abs(dx[1]-4) > 1e-12 {
		t.Errorf("expected motion along +y, got %v", dx)
	}
}

func TestTurnRadius(t *testing.T) {
	b := NewKinematicBicycle(2.0)
	if !math.IsInf(b.TurnRadius(0), 1) {
		t.Error("straight wheels should have infinite radius")
	}
	if math.Abs(b.TurnRadius(-0.5)-4) > 1e-12 {
		t.Errorf("expected radius 4, got %f", b.TurnRadius(-0.5))
	}
}
