package mpc

import (
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/integrators"
	"github.com/san-kum/mpcdrive/internal/models"
)

// DelayCompensator projects a pose over the actuation latency using the
// command already in flight, stepping the same bicycle model the optimizer
// uses with one forward Euler step.
type DelayCompensator struct {
	Latency float64

	model *models.KinematicBicycle
	integ dynamo.Integrator
}

func NewDelayCompensator(latency, lf float64) *DelayCompensator {
	return &DelayCompensator{
		Latency: latency,
		model:   models.NewKinematicBicycle(lf),
		integ:   integrators.NewEuler(),
	}
}

func (d *DelayCompensator) Project(pose dynamo.Pose, prev dynamo.Actuation) dynamo.Pose {
	if d.Latency == 0 {
		return pose
	}
	x := d.integ.Step(d.model, pose.Vector(), prev.Control(), 0, d.Latency)
	out := dynamo.PoseFromVector(x)
	out.Psi = dynamo.NormalizeAngle(out.Psi)
	return out
}
