package dynamo

import (
	"math"
	"time"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

type Control []float64

// System is a continuous-time plant dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(s Sample)
}

// Pose is the kinematic part of the vehicle state in the world frame.
type Pose struct {
	X, Y, Psi, V float64
}

func (p Pose) Vector() State {
	return State{p.X, p.Y, p.Psi, p.V}
}

func PoseFromVector(x State) Pose {
	if len(x) < 4 {
		return Pose{}
	}
	return Pose{X: x[0], Y: x[1], Psi: x[2], V: x[3]}
}

// VehicleState is the optimizer's 6-tuple (x, y, psi, v, cte, epsi).
type VehicleState struct {
	X, Y, Psi, V, CTE, EPsi float64
}

func (s VehicleState) Vector() State {
	return State{s.X, s.Y, s.Psi, s.V, s.CTE, s.EPsi}
}

func (s VehicleState) IsValid() bool {
	return s.Vector().IsValid()
}

// Actuation is a control pair in the optimizer's convention: Delta is the
// steering angle in radians, positive turning counter-clockwise.
type Actuation struct {
	Delta, Accel float64
}

func (a Actuation) Control() Control {
	return Control{a.Delta, a.Accel}
}

// Command converts to the wire form. The simulator steers clockwise for a
// positive value, so the sign flips here and only here.
func (a Actuation) Command(maxSteer float64) Command {
	return Command{Steering: -a.Delta / maxSteer, Throttle: a.Accel}
}

// Command is the actuation exchanged with the simulator: Steering is
// normalised to [-1, 1] by the lock angle.
type Command struct {
	Steering, Throttle float64
}

func (c Command) Actuation(maxSteer float64) Actuation {
	return Actuation{Delta: -c.Steering * maxSteer, Accel: c.Throttle}
}

// Observation is one telemetry event in world coordinates.
type Observation struct {
	Pose       Pose
	WaypointsX []float64
	WaypointsY []float64
	// Previous is the command in flight, zero on the first tick.
	Previous Command
}

// Sample records one control tick for metrics and export.
type Sample struct {
	Tick       int
	Time       float64
	Pose       Pose
	State      VehicleState
	TrackError float64
	Command    Command
	SolveTime  time.Duration
	Skipped    bool
}
