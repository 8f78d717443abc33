package mpc

import (
	"fmt"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
)

type Weights struct {
	CTE          float64
	EPsi         float64
	Speed        float64
	Steer        float64
	Throttle     float64
	SteerRate    float64
	ThrottleRate float64
}

// Params is the immutable tuning of an Optimizer.
type Params struct {
	Steps       int
	Dt          float64
	Lf          float64
	MaxSteer    float64
	MaxThrottle float64
	RefSpeed    float64
	Weights     Weights
}

func ParamsFromConfig(cfg *config.Config) Params {
	w := cfg.Weights
	return Params{
		Steps:       cfg.Horizon.Steps,
		Dt:          cfg.Horizon.Dt,
		Lf:          cfg.Vehicle.Lf,
		MaxSteer:    cfg.MaxSteer(),
		MaxThrottle: cfg.Vehicle.MaxThrottle,
		RefSpeed:    cfg.RefSpeed,
		Weights: Weights{
			CTE:          w.CTE,
			EPsi:         w.EPsi,
			Speed:        w.Speed,
			Steer:        w.Steer,
			Throttle:     w.Throttle,
			SteerRate:    w.SteerRate,
			ThrottleRate: w.ThrottleRate,
		},
	}
}

func (p Params) Validate() error {
	if p.Steps < 2 || p.Dt <= 0 || p.Lf <= 0 || p.MaxSteer <= 0 || p.MaxThrottle <= 0 {
		return fmt.Errorf("%w: steps=%d dt=%g lf=%g max_steer=%g max_throttle=%g",
			dynamo.ErrParameterBounds, p.Steps, p.Dt, p.Lf, p.MaxSteer, p.MaxThrottle)
	}
	return nil
}
