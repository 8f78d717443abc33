package mpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/nlp"
	"github.com/san-kum/mpcdrive/internal/polyfit"
)

// Optimizer builds and solves the horizon problem. It holds no state between
// calls; concurrent Solve calls are safe when the solver is.
type Optimizer struct {
	params Params
	layout Layout
	solver nlp.Solver
	logger *zap.SugaredLogger
}

func NewOptimizer(params Params, solver nlp.Solver, logger *zap.Logger) (*Optimizer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if solver == nil {
		return nil, errors.New("mpc: nil solver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		params: params,
		layout: NewLayout(params.Steps),
		solver: solver,
		logger: logger.Sugar().Named("mpc"),
	}, nil
}

func (o *Optimizer) Params() Params { return o.params }
func (o *Optimizer) Layout() Layout { return o.layout }

// Plan is the outcome of a successful solve.
type Plan struct {
	// Actuation is the first control pair, clamped to its bounds.
	Actuation dynamo.Actuation
	Vars      Vars
	Layout    Layout

	Cost       float64
	Status     nlp.Status
	Iterations int
	Violation  float64
	Elapsed    time.Duration
}

// Predicted returns the planned vehicle-frame positions for steps 1..N-1.
func (p *Plan) Predicted() (xs, ys []float64) {
	xs = append([]float64(nil), p.Vars.X[1:]...)
	ys = append([]float64(nil), p.Vars.Y[1:]...)
	return xs, ys
}

func (p *Plan) State(t int) dynamo.VehicleState {
	v := p.Vars
	return dynamo.VehicleState{X: v.X[t], Y: v.Y[t], Psi: v.Psi[t], V: v.V[t], CTE: v.CTE[t], EPsi: v.EPsi[t]}
}

func (p *Plan) Control(t int) dynamo.Actuation {
	return dynamo.Actuation{Delta: p.Vars.Delta[t], Accel: p.Vars.A[t]}
}

func (o *Optimizer) Solve(ctx context.Context, initial dynamo.VehicleState, ref polyfit.Poly) (*Plan, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: initial state %+v", dynamo.ErrInvalidState, initial)
	}
	if len(ref) == 0 || !dynamo.State(ref).IsValid() {
		return nil, fmt.Errorf("%w: reference coefficients %v", dynamo.ErrInvalidState, ref)
	}

	start := time.Now()
	prob := newProblem(o.params, o.layout, initial, ref)
	res, err := o.solver.Solve(ctx, prob.nlp(), prob.initialGuess())
	if err != nil {
		return nil, fmt.Errorf("mpc: %s solve: %w", o.solver.Name(), err)
	}
	elapsed := time.Since(start)

	if !res.Status.OK() {
		o.logger.Warnw("solve failed",
			"status", res.Status.String(),
			"iterations", res.Iterations,
			"violation", res.Violation,
			"elapsed", elapsed,
		)
		var wrapped error
		if res.Message != "" {
			wrapped = errors.New(res.Message)
		}
		return nil, &dynamo.SolveError{
			Status:     res.Status.String(),
			Iterations: res.Iterations,
			Violation:  res.Violation,
			Wrapped:    wrapped,
		}
	}

	// the pinned tuple is reported at its pinned value
	x := res.X
	for k, span := range o.layout.States() {
		x[span.At(0)] = prob.init[k]
	}

	plan := &Plan{
		Vars:       o.layout.View(x),
		Layout:     o.layout,
		Cost:       res.Objective,
		Status:     res.Status,
		Iterations: res.Iterations,
		Violation:  res.Violation,
		Elapsed:    elapsed,
	}
	plan.Actuation = dynamo.Actuation{
		Delta: clamp(plan.Vars.Delta[0], o.params.MaxSteer),
		Accel: clamp(plan.Vars.A[0], o.params.MaxThrottle),
	}

	o.logger.Debugw("solved",
		"status", res.Status.String(),
		"iterations", res.Iterations,
		"cost", res.Objective,
		"delta", plan.Actuation.Delta,
		"accel", plan.Actuation.Accel,
		"elapsed", elapsed,
	)
	return plan, nil
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
