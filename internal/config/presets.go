package config

import "sort"

// Presets are named tunings layered over DefaultConfig.
var Presets = map[string]func(*Config){
	"default": func(c *Config) {},
	"smooth": func(c *Config) {
		c.RefSpeed = 30
		c.Weights.SteerRate = 600
		c.Weights.ThrottleRate = 100
		c.Weights.Steer = 20
	},
	"aggressive": func(c *Config) {
		c.RefSpeed = 60
		c.Weights.CTE = 5000
		c.Weights.EPsi = 5000
		c.Weights.SteerRate = 100
	},
	"lowspeed": func(c *Config) {
		c.RefSpeed = 15
		c.Horizon.Steps = 15
		c.Weights.CTE = 1000
		c.Weights.EPsi = 1000
		c.Weights.Speed = 5
	},
	"nolatency": func(c *Config) {
		c.Latency = 0
		c.Server.ResponseDelay = 0
	},
}

func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
