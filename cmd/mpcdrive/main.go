package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/logging"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/track"
)

var (
	configFile string
	preset     string
	dataDir    string
	logLevel   string
	logFormat  string

	trackName  string
	controller string
	integrator string
	duration   float64
	refSpeed   float64
	latency    float64
	offset     float64
	backend    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mpcdrive",
		Short:         "receding-horizon steering and throttle controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.StringVar(&dataDir, "data", ".mpcdrive", "data directory")
	pf.StringVar(&logLevel, "log-level", "info", "log level")
	pf.StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	pf.Float64Var(&refSpeed, "ref-speed", config.DefaultRefSpeed, "reference speed")
	pf.Float64Var(&latency, "latency", config.DefaultLatency, "actuation latency (s)")
	pf.StringVar(&backend, "backend", "auglag", "nlp backend")

	rootCmd.AddCommand(
		serveCmd(),
		solveCmd(),
		runCmd(),
		liveCmd(),
		listCmd(),
		plotCmd(),
		analyzeCmd(),
		exportJSONCmd(),
		exportCSVCmd(),
		tuneCmd(),
		scenarioCmd(),
		sweepCmd(),
		presetsCmd(),
		tracksCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// simFlags registers the closed-loop run flags on cmd.
func simFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&controller, "controller", "mpc", "controller (mpc, pid)")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "plant integrator")
	cmd.Flags().Float64Var(&duration, "time", 30, "simulated duration (s)")
	cmd.Flags().Float64Var(&offset, "offset", 0, "lateral start offset (m)")
}

// loadConfig layers preset, config file and changed flags, in that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		if cfg = config.GetPreset(preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.LoadOver(cfg, configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("ref-speed") {
		cfg.RefSpeed = refSpeed
	}
	if flags.Changed("latency") {
		cfg.Latency = latency
	}
	if flags.Changed("backend") {
		cfg.Solver.Backend = backend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}
	if flags.Changed("time") {
		cfg.Sim.Duration = duration
	}
	if flags.Changed("offset") {
		cfg.Sim.Offset = offset
	}
	if len(args) > 0 && args[0] != "" {
		cfg.Sim.Track = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// controlPeriod is the tick of a closed-loop run for cfg.
func controlPeriod(cfg *config.Config) time.Duration {
	return time.Duration(sim.ConfigFrom(cfg).Period * float64(time.Second))
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				cfg := config.GetPreset(p)
				fmt.Printf("  %-12s ref_speed=%-5g steps=%-3d latency=%gs steer_rate=%g\n",
					p, cfg.RefSpeed, cfg.Horizon.Steps, cfg.Latency, cfg.Weights.SteerRate)
			}
			return nil
		},
	}
}

func tracksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks",
		Short: "list built-in tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range track.Names() {
				tr, err := track.Get(name)
				if err != nil {
					return err
				}
				kind := "open"
				if tr.Closed {
					kind = "closed"
				}
				fmt.Printf("  %-10s %-6s %4d points %8.1f m\n", name, kind, tr.Len(), tr.Length())
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "print the effective configuration, or write it to path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := config.Save(args[0], cfg); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", args[0])
				return nil
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
