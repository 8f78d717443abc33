package optim

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/experiment"
	"github.com/san-kum/mpcdrive/internal/metrics"
)

var weightFields = map[string]func(*config.WeightsConfig) *float64{
	"cte":           func(w *config.WeightsConfig) *float64 { return &w.CTE },
	"epsi":          func(w *config.WeightsConfig) *float64 { return &w.EPsi },
	"speed":         func(w *config.WeightsConfig) *float64 { return &w.Speed },
	"steer":         func(w *config.WeightsConfig) *float64 { return &w.Steer },
	"throttle":      func(w *config.WeightsConfig) *float64 { return &w.Throttle },
	"steer_rate":    func(w *config.WeightsConfig) *float64 { return &w.SteerRate },
	"throttle_rate": func(w *config.WeightsConfig) *float64 { return &w.ThrottleRate },
}

// WeightNames lists the tunable cost weights.
func WeightNames() []string {
	names := make([]string, 0, len(weightFields))
	for name := range weightFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyWeights returns a copy of base with the named weights replaced.
func ApplyWeights(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		field, ok := weightFields[name]
		if !ok {
			return nil, fmt.Errorf("unknown weight %q (available: %v)", name, WeightNames())
		}
		*field(&cfg.Weights) = v
	}
	return cfg, cfg.Validate()
}

// higherIsBetter lists metrics that Search must maximise.
var higherIsBetter = map[string]bool{"on_track": true}

// RunEvaluator scores weights by a closed-loop MPC run on the configured
// track and the named metric. Every evaluation builds its own controller and
// plant.
func RunEvaluator(base *config.Config, registry *experiment.Registry, metric string, logger *zap.Logger) (Evaluate, error) {
	if _, err := metrics.New(metric, base.RefSpeed); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar().Named("tune")

	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := ApplyWeights(base, params)
		if err != nil {
			return 0, err
		}
		exp, err := experiment.New(cfg, "mpc", nil)
		if err != nil {
			return 0, err
		}
		m, _ := metrics.New(metric, cfg.RefSpeed)
		if err := exp.Setup(registry, m); err != nil {
			return 0, err
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return 0, err
		}
		score := result.Metrics[metric]
		log.Debugw("trial", "params", params, metric, score, "skipped", result.Skipped())
		if higherIsBetter[metric] {
			return -score, nil
		}
		return score, nil
	}, nil
}

// Score converts a search score back to the metric's own scale.
func Score(metric string, score float64) float64 {
	if higherIsBetter[metric] {
		return -score
	}
	return score
}
