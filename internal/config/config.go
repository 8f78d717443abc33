package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps       = 10
	DefaultDt          = 0.1
	DefaultLf          = 2.67
	DefaultMaxSteerDeg = 25.0
	DefaultRefSpeed    = 40.0
	DefaultLatency     = 0.1
	DefaultAddr        = ":4567"
	DefaultRefPoints   = 24
	DefaultRefSpacing  = 2.5

	// DefaultMaxSolveTime is half the default control period.
	DefaultMaxSolveTime = 50 * time.Millisecond
)

type Config struct {
	Horizon       HorizonConfig `yaml:"horizon"`
	Vehicle       VehicleConfig `yaml:"vehicle"`
	RefSpeed      float64       `yaml:"ref_speed"`
	Latency       float64       `yaml:"latency"`
	PolyDegree    int           `yaml:"poly_degree"`
	Weights       WeightsConfig `yaml:"weights"`
	Solver        SolverConfig  `yaml:"solver"`
	Server        ServerConfig  `yaml:"server"`
	Visualization VizConfig     `yaml:"visualization"`
	Sim           SimConfig     `yaml:"sim"`
	Log           LogConfig     `yaml:"log"`
}

type HorizonConfig struct {
	Steps int     `yaml:"steps"`
	Dt    float64 `yaml:"dt"`
}

type VehicleConfig struct {
	Lf          float64 `yaml:"lf"`
	MaxSteerDeg float64 `yaml:"max_steer_deg"`
	MaxThrottle float64 `yaml:"max_throttle"`
}

type WeightsConfig struct {
	CTE          float64 `yaml:"cte"`
	EPsi         float64 `yaml:"epsi"`
	Speed        float64 `yaml:"speed"`
	Steer        float64 `yaml:"steer"`
	Throttle     float64 `yaml:"throttle"`
	SteerRate    float64 `yaml:"steer_rate"`
	ThrottleRate float64 `yaml:"throttle_rate"`
}

type SolverConfig struct {
	Backend   string        `yaml:"backend"`
	MaxEval   int           `yaml:"max_eval"`
	Tolerance float64       `yaml:"tolerance"`
	MaxTime   time.Duration `yaml:"max_time"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	ResponseDelay time.Duration `yaml:"response_delay"`
	OnFailure     string        `yaml:"on_failure"`
}

type VizConfig struct {
	RefPoints  int     `yaml:"ref_points"`
	RefSpacing float64 `yaml:"ref_spacing"`
}

type SimConfig struct {
	Track      string  `yaml:"track"`
	Duration   float64 `yaml:"duration"`
	PlantDt    float64 `yaml:"plant_dt"`
	Integrator string  `yaml:"integrator"`
	Waypoints  int     `yaml:"waypoints"`
	StartSpeed float64 `yaml:"start_speed"`
	Offset     float64 `yaml:"offset"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	FailurePolicies = []string{"skip", "hold", "brake"}
	LogFormats      = []string{"console", "json"}
)

func DefaultConfig() *Config {
	return &Config{
		Horizon: HorizonConfig{Steps: DefaultSteps, Dt: DefaultDt},
		Vehicle: VehicleConfig{
			Lf:          DefaultLf,
			MaxSteerDeg: DefaultMaxSteerDeg,
			MaxThrottle: 1.0,
		},
		RefSpeed:   DefaultRefSpeed,
		Latency:    DefaultLatency,
		PolyDegree: 3,
		Weights: WeightsConfig{
			CTE:          3000,
			EPsi:         3000,
			Speed:        1,
			Steer:        5,
			Throttle:     5,
			SteerRate:    200,
			ThrottleRate: 50,
		},
		Solver: SolverConfig{
			Backend:   "auglag",
			MaxEval:   2000,
			Tolerance: 1e-8,
			MaxTime:   DefaultMaxSolveTime,
		},
		Server: ServerConfig{
			Addr:          DefaultAddr,
			ResponseDelay: 100 * time.Millisecond,
			OnFailure:     "skip",
		},
		Visualization: VizConfig{
			RefPoints:  DefaultRefPoints,
			RefSpacing: DefaultRefSpacing,
		},
		Sim: SimConfig{
			Track:      "oval",
			Duration:   30,
			PlantDt:    0.01,
			Integrator: "rk4",
			Waypoints:  6,
			StartSpeed: 10,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(DefaultConfig(), path)
}

// LoadOver reads path on top of a copy of base. Keys absent from the file
// keep their base values.
func LoadOver(base *Config, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

func (c *Config) Validate() error {
	switch {
	case c.Horizon.Steps < 2:
		return fmt.Errorf("horizon.steps must be at least 2, got %d", c.Horizon.Steps)
	case c.Horizon.Dt <= 0:
		return fmt.Errorf("horizon.dt must be positive, got %g", c.Horizon.Dt)
	case c.Vehicle.Lf <= 0:
		return fmt.Errorf("vehicle.lf must be positive, got %g", c.Vehicle.Lf)
	case c.Vehicle.MaxSteerDeg <= 0 || c.Vehicle.MaxSteerDeg >= 90:
		return fmt.Errorf("vehicle.max_steer_deg must be in (0, 90), got %g", c.Vehicle.MaxSteerDeg)
	case c.Vehicle.MaxThrottle <= 0:
		return fmt.Errorf("vehicle.max_throttle must be positive, got %g", c.Vehicle.MaxThrottle)
	case c.Latency < 0:
		return fmt.Errorf("latency must not be negative, got %g", c.Latency)
	case c.PolyDegree < 1 || c.PolyDegree > 5:
		return fmt.Errorf("poly_degree must be in [1, 5], got %d", c.PolyDegree)
	case c.Solver.MaxTime < 0:
		return fmt.Errorf("solver.max_time must not be negative, got %s", c.Solver.MaxTime)
	case c.Server.ResponseDelay < 0:
		return fmt.Errorf("server.response_delay must not be negative, got %s", c.Server.ResponseDelay)
	case c.Visualization.RefPoints < 0 || c.Visualization.RefSpacing <= 0:
		return fmt.Errorf("visualization needs ref_points >= 0 and ref_spacing > 0")
	case c.Sim.PlantDt <= 0 || c.Sim.Duration <= 0:
		return fmt.Errorf("sim.plant_dt and sim.duration must be positive")
	case c.Sim.Waypoints < c.PolyDegree+1:
		return fmt.Errorf("sim.waypoints must be at least %d for the curve fit, got %d", c.PolyDegree+1, c.Sim.Waypoints)
	}
	w := c.Weights
	for name, v := range map[string]float64{
		"cte": w.CTE, "epsi": w.EPsi, "speed": w.Speed, "steer": w.Steer,
		"throttle": w.Throttle, "steer_rate": w.SteerRate, "throttle_rate": w.ThrottleRate,
	} {
		if v < 0 {
			return fmt.Errorf("weights.%s must not be negative, got %g", name, v)
		}
	}
	if !contains(FailurePolicies, c.Server.OnFailure) {
		return fmt.Errorf("server.on_failure must be one of %v, got %q", FailurePolicies, c.Server.OnFailure)
	}
	if !contains(LogFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", LogFormats, c.Log.Format)
	}
	return nil
}

// MaxSteer is the steering lock in radians.
func (c *Config) MaxSteer() float64 {
	return c.Vehicle.MaxSteerDeg * math.Pi / 180
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
