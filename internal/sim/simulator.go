// Package sim closes the loop offline: a kinematic bicycle plant driven
// around a track by a control.Controller, with the actuation latency and
// waypoint window the real simulator imposes.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/control"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/models"
	"github.com/san-kum/mpcdrive/internal/track"
)

type Simulator struct {
	cfg        Config
	track      *track.Track
	controller control.Controller
	plant      dynamo.System
	integrator dynamo.Integrator
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *zap.SugaredLogger

	pose     dynamo.Pose
	t        float64
	tick     int
	inFlight dynamo.Command
	last     *control.Output
	finished bool
}

func New(cfg Config, tr *track.Track, ctrl control.Controller, integ dynamo.Integrator, logger *zap.Logger) (*Simulator, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		cfg:        cfg,
		track:      tr,
		controller: ctrl,
		plant:      models.NewKinematicBicycle(cfg.Lf),
		integrator: integ,
		logger:     logger.Sugar().Named("sim"),
	}
	s.Reset()
	return s, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.PlantDt <= 0:
		return fmt.Errorf("plant dt must be positive, got %f", cfg.PlantDt)
	case cfg.Period < cfg.PlantDt:
		return fmt.Errorf("control period %f is shorter than the plant step %f", cfg.Period, cfg.PlantDt)
	case cfg.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	case cfg.Lf <= 0 || cfg.MaxSteer <= 0:
		return fmt.Errorf("%w: lf=%g max_steer=%g", dynamo.ErrParameterBounds, cfg.Lf, cfg.MaxSteer)
	case cfg.Waypoints < 1:
		return fmt.Errorf("waypoint window must hold at least one point, got %d", cfg.Waypoints)
	}
	return nil
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Reset puts the vehicle back at the start of the track.
func (s *Simulator) Reset() {
	s.pose = s.track.Start(s.cfg.StartSpeed, s.cfg.Offset)
	s.t = 0
	s.tick = 0
	s.inFlight = dynamo.Command{}
	s.last = nil
	s.finished = false
	for _, m := range s.metrics {
		m.Reset()
	}
	if r, ok := s.controller.(interface{ Reset() }); ok {
		r.Reset()
	}
}

func (s *Simulator) Pose() dynamo.Pose   { return s.pose }
func (s *Simulator) Time() float64       { return s.t }
func (s *Simulator) Track() *track.Track { return s.track }

// Last is the most recent successful controller output, nil before the
// first one.
func (s *Simulator) Last() *control.Output { return s.last }

func (s *Simulator) Done() bool {
	return s.finished || s.t >= s.cfg.Duration-1e-9
}

// Step runs one control tick and advances the plant by one period. A tick
// where the controller fails keeps the command in flight and returns the
// failure as a *dynamo.TickError alongside a skipped sample.
func (s *Simulator) Step(ctx context.Context) (dynamo.Sample, error) {
	if s.Done() {
		return dynamo.Sample{}, ErrFinished
	}
	if s.track.Finished(s.pose) {
		s.finished = true
		return dynamo.Sample{}, ErrFinished
	}

	xs, ys := s.track.Window(s.pose, s.cfg.Waypoints)
	if !s.track.Closed && len(xs) < s.cfg.Waypoints {
		s.finished = true
		return dynamo.Sample{}, ErrFinished
	}

	obs := dynamo.Observation{
		Pose:       s.pose,
		WaypointsX: xs,
		WaypointsY: ys,
		Previous:   s.inFlight,
	}
	sample := dynamo.Sample{
		Tick:       s.tick,
		Time:       s.t,
		Pose:       s.pose,
		TrackError: s.track.CrossTrack(s.pose.X, s.pose.Y),
	}

	var tickErr error
	issued := s.inFlight
	out, err := s.controller.Step(ctx, obs)
	switch {
	case err != nil && ctx.Err() != nil:
		return sample, ctx.Err()
	case err != nil:
		sample.Skipped = true
		tickErr = &dynamo.TickError{Tick: s.tick, Time: s.t, Wrapped: err}
		s.logger.Debugw("tick skipped", "tick", s.tick, "error", err)
	default:
		issued = out.Command
		sample.State = out.State
		sample.SolveTime = out.Elapsed
		s.last = out
	}
	sample.Command = issued

	applied := issued
	if s.cfg.Latency > 0 {
		applied = s.inFlight
	}
	s.inFlight = issued

	if err := s.advance(applied); err != nil {
		return sample, err
	}

	for _, m := range s.metrics {
		m.Observe(sample)
	}
	for _, o := range s.observers {
		o.OnTick(sample)
	}
	s.tick++
	return sample, tickErr
}

// advance integrates the plant over one control period under cmd.
func (s *Simulator) advance(cmd dynamo.Command) error {
	u := cmd.Actuation(s.cfg.MaxSteer).Control()
	x := s.pose.Vector()

	steps := int(math.Round(s.cfg.Period / s.cfg.PlantDt))
	dt := s.cfg.Period / float64(steps)
	for i := 0; i < steps; i++ {
		x = s.integrator.Step(s.plant, x, u, s.t, dt)
		// brakes stop the car, they do not reverse it
		if x[3] < 0 {
			x[3] = 0
		}
		s.t += dt
	}
	if !x.IsValid() {
		return fmt.Errorf("sim: plant diverged at t=%.2f: %w", s.t, dynamo.ErrInvalidState)
	}

	s.pose = dynamo.PoseFromVector(x)
	s.pose.Psi = dynamo.NormalizeAngle(s.pose.Psi)
	return nil
}

// Run drives from the start until the duration elapses or an open track
// ends. Controller failures are collected, not fatal.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	s.Reset()
	result := &Result{
		Track:   s.track.Name,
		Samples: make([]dynamo.Sample, 0, int(s.cfg.Duration/s.cfg.Period)+1),
		Metrics: make(map[string]float64),
	}

	for {
		sample, err := s.Step(ctx)
		if errors.Is(err, ErrFinished) {
			break
		}
		var tickErr *dynamo.TickError
		switch {
		case err == nil:
		case errors.As(err, &tickErr):
			result.Errors = append(result.Errors, err)
		default:
			return result, err
		}
		result.Samples = append(result.Samples, sample)
	}
	result.Finished = s.finished

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.logger.Infow("run complete",
		"track", result.Track,
		"ticks", len(result.Samples),
		"skipped", result.Skipped(),
		"finished", result.Finished,
	)
	return result, nil
}
