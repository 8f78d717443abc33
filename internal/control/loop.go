package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/frame"
	"github.com/san-kum/mpcdrive/internal/mpc"
	"github.com/san-kum/mpcdrive/internal/nlp"
	"github.com/san-kum/mpcdrive/internal/polyfit"
)

// Controller turns one observation into one command.
type Controller interface {
	Step(ctx context.Context, obs dynamo.Observation) (*Output, error)
}

// Output is the result of a planning cycle. Point slices are in the vehicle
// frame of the projected pose.
type Output struct {
	Command   dynamo.Command
	Actuation dynamo.Actuation

	// Projected is the pose after delay compensation, the origin of the
	// vehicle frame.
	Projected dynamo.Pose
	State     dynamo.VehicleState
	Reference polyfit.Poly

	MPCX, MPCY   []float64
	NextX, NextY []float64

	Plan    *mpc.Plan
	Elapsed time.Duration
}

type Loop struct {
	compensator *mpc.DelayCompensator
	optimizer   *mpc.Optimizer

	degree     int
	maxSteer   float64
	refPoints  int
	refSpacing float64

	logger *zap.SugaredLogger
}

// NewSolver builds the configured NLP backend.
func NewSolver(cfg *config.Config) (nlp.Solver, error) {
	opts := nlp.DefaultOptions()
	if cfg.Solver.Tolerance > 0 {
		opts.Tolerance = cfg.Solver.Tolerance
	}
	if cfg.Solver.MaxEval > 0 {
		opts.MaxEval = cfg.Solver.MaxEval
	}
	opts.MaxTime = cfg.Solver.MaxTime
	return nlp.New(cfg.Solver.Backend, opts)
}

// NewLoop wires a loop from cfg. A nil solver selects the configured backend.
func NewLoop(cfg *config.Config, solver nlp.Solver, logger *zap.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		var err error
		if solver, err = NewSolver(cfg); err != nil {
			return nil, err
		}
	}
	opt, err := mpc.NewOptimizer(mpc.ParamsFromConfig(cfg), solver, logger)
	if err != nil {
		return nil, err
	}
	return &Loop{
		compensator: mpc.NewDelayCompensator(cfg.Latency, cfg.Vehicle.Lf),
		optimizer:   opt,
		degree:      cfg.PolyDegree,
		maxSteer:    cfg.MaxSteer(),
		refPoints:   cfg.Visualization.RefPoints,
		refSpacing:  cfg.Visualization.RefSpacing,
		logger:      logger.Sugar().Named("loop"),
	}, nil
}

func (l *Loop) Optimizer() *mpc.Optimizer { return l.optimizer }

func (l *Loop) Step(ctx context.Context, obs dynamo.Observation) (*Output, error) {
	start := time.Now()

	out, err := l.prepare(obs)
	if err != nil {
		return nil, err
	}

	plan, err := l.optimizer.Solve(ctx, out.State, out.Reference)
	if err != nil {
		return nil, err
	}

	out.Plan = plan
	out.Actuation = plan.Actuation
	out.Command = plan.Actuation.Command(l.maxSteer)
	out.MPCX, out.MPCY = plan.Predicted()
	out.Elapsed = time.Since(start)

	l.logger.Debugw("tick",
		"cte", out.State.CTE,
		"epsi", out.State.EPsi,
		"steering", out.Command.Steering,
		"throttle", out.Command.Throttle,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

// prepare runs the stages ahead of the solve and fills everything in Output
// except the command and the predicted points.
func (l *Loop) prepare(obs dynamo.Observation) (*Output, error) {
	return prepare(obs, l.compensator, l.degree, l.maxSteer, l.refSpacing, l.refPoints)
}

func prepare(obs dynamo.Observation, comp *mpc.DelayCompensator, degree int, maxSteer, spacing float64, points int) (*Output, error) {
	if len(obs.WaypointsX) != len(obs.WaypointsY) {
		return nil, fmt.Errorf("%w: %d x waypoints, %d y waypoints",
			dynamo.ErrMalformedTelemetry, len(obs.WaypointsX), len(obs.WaypointsY))
	}
	if !obs.Pose.Vector().IsValid() {
		return nil, fmt.Errorf("%w: pose %+v", dynamo.ErrMalformedTelemetry, obs.Pose)
	}

	pose := comp.Project(obs.Pose, obs.Previous.Actuation(maxSteer))
	xs, ys := frame.Split(frame.ToVehicle(pose, frame.Points(obs.WaypointsX, obs.WaypointsY)))

	ref, err := polyfit.Fit(xs, ys, degree)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Projected: pose,
		State:     mpc.InitialState(pose.V, ref),
		Reference: ref,
	}
	out.NextX, out.NextY = ref.Sample(spacing, points)
	return out, nil
}
