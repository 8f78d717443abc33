package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/integrators"
	"github.com/san-kum/mpcdrive/internal/metrics"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/track"
)

// Experiment is one closed-loop run: a track, a controller and a plant
// integrator, all taken from a configuration.
type Experiment struct {
	cfg        *config.Config
	controller string
	track      *track.Track
	simCfg     sim.Config
	simulator  *sim.Simulator
	logger     *zap.Logger
}

// New resolves the configured track. Setup must be called before Run.
func New(cfg *config.Config, controller string, logger *zap.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := track.Get(cfg.Sim.Track)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{
		cfg:        cfg,
		controller: controller,
		track:      tr,
		simCfg:     sim.ConfigFrom(cfg),
		logger:     logger,
	}, nil
}

// Setup builds the controller, the integrator and the simulator. Metrics
// default to the full set when none are given.
func (e *Experiment) Setup(registry *Registry, ms ...dynamo.Metric) error {
	period := time.Duration(e.simCfg.Period * float64(time.Second))
	ctrl, err := registry.GetController(e.controller, e.cfg, period, e.logger)
	if err != nil {
		return err
	}
	integ, err := integrators.New(e.cfg.Sim.Integrator)
	if err != nil {
		return err
	}
	s, err := sim.New(e.simCfg, e.track, ctrl, integ, e.logger)
	if err != nil {
		return err
	}

	if len(ms) == 0 {
		ms = metrics.All(e.cfg.RefSpeed)
	}
	for _, m := range ms {
		s.AddMetric(m)
	}
	e.simulator = s
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx)
}

func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }
func (e *Experiment) Track() *track.Track       { return e.track }
func (e *Experiment) SimConfig() sim.Config     { return e.simCfg }
func (e *Experiment) Controller() string        { return e.controller }
