package models

import (
	"math"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

const DefaultLf = 2.67

// KinematicBicycle is the slip-free bicycle model on x = [x, y, psi, v]
// with u = [delta, a]. Lf is the distance from the centre of gravity to the
// front axle. Delta is counter-clockwise positive.
type KinematicBicycle struct {
	Lf float64
}

func NewKinematicBicycle(lf float64) *KinematicBicycle {
	return &KinematicBicycle{Lf: lf}
}

func (b *KinematicBicycle) StateDim() int   { return 4 }
func (b *KinematicBicycle) ControlDim() int { return 2 }

func (b *KinematicBicycle) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	psi, v := x[2], x[3]

	delta, a := 0.0, 0.0
	if len(u) >= 2 {
		delta, a = u[0], u[1]
	}

	return dynamo.State{
		v * math.Cos(psi),
		v * math.Sin(psi),
		v * delta / b.Lf,
		a,
	}
}

// YawRate is the heading rate produced by steering angle delta at speed v.
func (b *KinematicBicycle) YawRate(v, delta float64) float64 {
	return v * delta / b.Lf
}

// TurnRadius is the steady-state radius for a steering angle; Inf when straight.
func (b *KinematicBicycle) TurnRadius(delta float64) float64 {
	if delta == 0 {
		return math.Inf(1)
	}
	return b.Lf / math.Abs(delta)
}
