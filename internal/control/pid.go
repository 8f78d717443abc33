package control

import (
	"context"
	"math"
	"sync"
	"time"

	"go.einride.tech/pid"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/mpc"
)

// PID steers on the cross-track error and holds the reference speed with a
// second loop on the speed error. Unlike Loop it keeps state between ticks.
type PID struct {
	steer    pid.Controller
	throttle pid.Controller

	compensator *mpc.DelayCompensator
	degree      int
	maxSteer    float64
	maxThrottle float64
	refSpeed    float64
	refPoints   int
	refSpacing  float64
	period      time.Duration

	mu sync.Mutex
}

// NewPID builds a baseline driver ticking every period.
func NewPID(cfg *config.Config, period time.Duration) *PID {
	return &PID{
		steer: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: 0.15,
				IntegralGain:     0.002,
				DerivativeGain:   0.05,
			},
		},
		throttle: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: 0.2,
				IntegralGain:     0.01,
			},
		},
		compensator: mpc.NewDelayCompensator(cfg.Latency, cfg.Vehicle.Lf),
		degree:      cfg.PolyDegree,
		maxSteer:    cfg.MaxSteer(),
		maxThrottle: cfg.Vehicle.MaxThrottle,
		refSpeed:    cfg.RefSpeed,
		refPoints:   cfg.Visualization.RefPoints,
		refSpacing:  cfg.Visualization.RefSpacing,
		period:      period,
	}
}

func (p *PID) Step(ctx context.Context, obs dynamo.Observation) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	out, err := prepare(obs, p.compensator, p.degree, p.maxSteer, p.refSpacing, p.refPoints)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	// positive cte means the path lies to the left
	p.steer.Update(pid.ControllerInput{
		ReferenceSignal:  out.State.CTE,
		ActualSignal:     0,
		SamplingInterval: p.period,
	})
	p.throttle.Update(pid.ControllerInput{
		ReferenceSignal:  p.refSpeed,
		ActualSignal:     out.State.V,
		SamplingInterval: p.period,
	})
	delta, accel := p.steer.State.ControlSignal, p.throttle.State.ControlSignal
	p.mu.Unlock()

	out.Actuation = dynamo.Actuation{
		Delta: math.Max(-p.maxSteer, math.Min(p.maxSteer, delta)),
		Accel: math.Max(-p.maxThrottle, math.Min(p.maxThrottle, accel)),
	}
	out.Command = out.Actuation.Command(p.maxSteer)
	out.Elapsed = time.Since(start)
	return out, nil
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steer.Reset()
	p.throttle.Reset()
}
