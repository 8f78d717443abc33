package automation

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/experiment"
	"github.com/san-kum/mpcdrive/internal/optim"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/storage"
)

// Scenario is a scripted sequence of runs sharing one base configuration.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep overrides the base configuration for one run. Zero values
// keep the base setting.
type ScenarioStep struct {
	Name       string             `yaml:"name"`
	Track      string             `yaml:"track"`
	Controller string             `yaml:"controller"`
	Integrator string             `yaml:"integrator"`
	Duration   float64            `yaml:"duration"`
	RefSpeed   float64            `yaml:"ref_speed"`
	Latency    *float64           `yaml:"latency"`
	Offset     *float64           `yaml:"offset"`
	Weights    map[string]float64 `yaml:"weights"`
	Save       bool               `yaml:"save"`
}

type StepResult struct {
	Step   ScenarioStep
	Meta   storage.RunMetadata
	Result *sim.Result
	// RunID is set when the run was saved.
	RunID string
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	return &scenario, nil
}

// Configure applies the step overrides to a copy of base.
func (s ScenarioStep) Configure(base *config.Config) (*config.Config, error) {
	cfg, err := optim.ApplyWeights(base, s.Weights)
	if err != nil {
		return nil, err
	}
	if s.Track != "" {
		cfg.Sim.Track = s.Track
	}
	if s.Integrator != "" {
		cfg.Sim.Integrator = s.Integrator
	}
	if s.Duration > 0 {
		cfg.Sim.Duration = s.Duration
	}
	if s.RefSpeed > 0 {
		cfg.RefSpeed = s.RefSpeed
	}
	if s.Latency != nil {
		cfg.Latency = *s.Latency
	}
	if s.Offset != nil {
		cfg.Sim.Offset = *s.Offset
	}
	return cfg, cfg.Validate()
}

// RunScenario executes the steps in order. Steps marked save are written to
// st when it is not nil. The results gathered so far are returned on error.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, registry *experiment.Registry, st *storage.Store, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar().Named("scenario")
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Configure(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		controller := step.Controller
		if controller == "" {
			controller = "mpc"
		}

		log.Infow("running step", "step", i+1, "of", len(scenario.Steps), "name", step.Name,
			"track", cfg.Sim.Track, "controller", controller)

		exp, err := experiment.New(cfg, controller, logger)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := exp.Setup(registry); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{
			Step:   step,
			Meta:   storage.NewMetadata(controller, cfg.Sim.Integrator, exp.SimConfig(), result),
			Result: result,
		}
		if step.Save && st != nil {
			if sr.RunID, err = st.Save(sr.Meta, result); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, sr)
	}

	return results, nil
}

// Sweep runs the base configuration once per value of a single parameter.
type Sweep struct {
	Param      string
	Values     []float64
	Controller string
}

var sweepParams = map[string]func(*config.Config, float64){
	"latency":   func(c *config.Config, v float64) { c.Latency = v },
	"ref_speed": func(c *config.Config, v float64) { c.RefSpeed = v },
	"offset":    func(c *config.Config, v float64) { c.Sim.Offset = v },
	"lf":        func(c *config.Config, v float64) { c.Vehicle.Lf = v },
}

type SweepResult struct {
	Value   float64
	Metrics map[string]float64
	Skipped int
}

func RunSweep(ctx context.Context, sweep Sweep, base *config.Config, registry *experiment.Registry, logger *zap.Logger) ([]SweepResult, error) {
	set, ok := sweepParams[sweep.Param]
	if !ok {
		return nil, fmt.Errorf("cannot sweep %q (available: latency, lf, offset, ref_speed)", sweep.Param)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar().Named("sweep")

	results := make([]SweepResult, 0, len(sweep.Values))
	for i, v := range sweep.Values {
		cfg := base.Clone()
		set(cfg, v)

		exp, err := experiment.New(cfg, sweep.Controller, nil)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		if err := exp.Setup(registry); err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}

		results = append(results, SweepResult{Value: v, Metrics: result.Metrics, Skipped: result.Skipped()})
		log.Infow("sweep point", "index", i+1, "of", len(sweep.Values), sweep.Param, v)
	}
	return results, nil
}
