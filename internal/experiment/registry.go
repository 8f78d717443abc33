package experiment

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/control"
)

// ControllerFactory builds a controller ticking every period.
type ControllerFactory func(cfg *config.Config, period time.Duration, logger *zap.Logger) (control.Controller, error)

type Registry struct {
	controllers map[string]ControllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{controllers: make(map[string]ControllerFactory)}

	r.controllers["mpc"] = func(cfg *config.Config, _ time.Duration, logger *zap.Logger) (control.Controller, error) {
		return control.NewLoop(cfg, nil, logger)
	}
	r.controllers["pid"] = func(cfg *config.Config, period time.Duration, _ *zap.Logger) (control.Controller, error) {
		return control.NewPID(cfg, period), nil
	}
	return r
}

func (r *Registry) Register(name string, f ControllerFactory) {
	r.controllers[name] = f
}

func (r *Registry) GetController(name string, cfg *config.Config, period time.Duration, logger *zap.Logger) (control.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s (available: %v)", name, r.ListControllers())
	}
	return fn(cfg, period, logger)
}

func (r *Registry) ListControllers() []string {
	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
