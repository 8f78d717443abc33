package sim

import (
	"errors"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// ErrFinished is returned by Step once the run is over.
var ErrFinished = errors.New("sim: run finished")

type Config struct {
	// Duration is the simulated time limit in seconds.
	Duration float64
	// PlantDt is the integration step of the vehicle plant.
	PlantDt float64
	// Period is the control period. A command issued at one tick takes
	// effect at the next one when Latency is positive.
	Period    float64
	Latency   float64
	Waypoints int

	StartSpeed float64
	// Offset shifts the start pose sideways, positive to the left.
	Offset float64

	Lf       float64
	MaxSteer float64
}

// ConfigFrom derives the run settings. The control period equals the
// actuation latency, or the horizon step when there is none.
func ConfigFrom(cfg *config.Config) Config {
	period := cfg.Latency
	if period <= 0 {
		period = cfg.Horizon.Dt
	}
	return Config{
		Duration:   cfg.Sim.Duration,
		PlantDt:    cfg.Sim.PlantDt,
		Period:     period,
		Latency:    cfg.Latency,
		Waypoints:  cfg.Sim.Waypoints,
		StartSpeed: cfg.Sim.StartSpeed,
		Offset:     cfg.Sim.Offset,
		Lf:         cfg.Vehicle.Lf,
		MaxSteer:   cfg.MaxSteer(),
	}
}

type Result struct {
	Track   string
	Samples []dynamo.Sample
	Metrics map[string]float64
	// Errors holds one *dynamo.TickError per skipped tick.
	Errors []error
	// Finished is set when an open track was driven to its end.
	Finished bool
}

// Path returns the driven world positions.
func (r *Result) Path() (xs, ys []float64) {
	xs = make([]float64, len(r.Samples))
	ys = make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		xs[i], ys[i] = s.Pose.X, s.Pose.Y
	}
	return xs, ys
}

func (r *Result) Skipped() int {
	n := 0
	for _, s := range r.Samples {
		if s.Skipped {
			n++
		}
	}
	return n
}
