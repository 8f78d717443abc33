package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/mpcdrive/internal/automation"
	"github.com/san-kum/mpcdrive/internal/experiment"
	"github.com/san-kum/mpcdrive/internal/optim"
	"github.com/san-kum/mpcdrive/internal/storage"
)

var (
	gridParams []string
	metricName string
	top        int
)

func tuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune [track]",
		Short: "grid search cost weights over closed-loop runs",
		Example: `  mpcdrive tune oval --time 20 \
    --param steer_rate=100,200,400 --param cte=1000,3000 --metric cte_rms`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTune,
	}
	simFlags(cmd)
	cmd.Flags().StringArrayVar(&gridParams, "param", nil, "weight=v1,v2,... (repeatable)")
	cmd.Flags().StringVar(&metricName, "metric", "cte_rms", "metric to optimise")
	cmd.Flags().IntVar(&top, "top", 5, "number of trials to show")
	return cmd
}

// parseGrid turns name=v1,v2 pairs into grid axes.
func parseGrid(pairs []string) ([]string, [][]float64, error) {
	if len(pairs) == 0 {
		return nil, nil, fmt.Errorf("no --param given (weights: %v)", optim.WeightNames())
	}
	names := make([]string, 0, len(pairs))
	ranges := make([][]float64, 0, len(pairs))
	for _, pair := range pairs {
		name, list, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, nil, fmt.Errorf("param %q: expected name=v1,v2", pair)
		}
		values, err := parseFloats(strings.Split(list, ","))
		if err != nil {
			return nil, nil, fmt.Errorf("param %s: %w", name, err)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	names, ranges, err := parseGrid(gridParams)
	if err != nil {
		return err
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	eval, err := optim.RunEvaluator(cfg, experiment.NewRegistry(), metricName, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("evaluating %d weight sets on %s...\n", len(grid.Points()), cfg.Sim.Track)
	best, trials, err := grid.Search(ctx, eval)
	if err != nil {
		return err
	}

	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	if top > len(trials) {
		top = len(trials)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.Join(names, "\t"), strings.ToUpper(metricName))
	for _, tr := range trials[:top] {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, strconv.FormatFloat(tr.Params[n], 'g', -1, 64))
		}
		if tr.Err != nil {
			row = append(row, "failed: "+tr.Err.Error())
		} else {
			row = append(row, fmt.Sprintf("%.6f", optim.Score(metricName, tr.Score)))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nbest weights:")
	for _, n := range names {
		fmt.Printf("  %s: %g\n", n, best.Params[n])
	}
	return nil
}

func scenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Printf("%s\n", scenario.Description)
	}
	results, runErr := automation.RunScenario(ctx, scenario, cfg, experiment.NewRegistry(), st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSTEP\tTRACK\tCTRL\tTICKS\tSKIPPED\tCTE RMS\tON TRACK\tRUN ID")
	for i, r := range results {
		name := r.Step.Name
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.3f\t%.0f%%\t%s\n",
			name, r.Meta.Track, r.Meta.Controller, r.Meta.Ticks, r.Meta.Skipped,
			r.Meta.Metrics["cte_rms"], 100*r.Meta.Metrics["on_track"], r.RunID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [param] [values...]",
		Short: "run once per value of latency, ref_speed, offset or lf",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSweep,
	}
	simFlags(cmd)
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	values, err := parseFloats(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep := automation.Sweep{Param: args[0], Values: values, Controller: controller}
	results, err := automation.RunSweep(ctx, sweep, cfg, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCTE RMS\tCTE MAX\tSPEED ERR\tON TRACK\tSKIPPED\n", strings.ToUpper(args[0]))
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%.3f\t%.3f\t%.3f\t%.0f%%\t%d\n", r.Value,
			r.Metrics["cte_rms"], r.Metrics["cte_max"], r.Metrics["speed_error"], 100*r.Metrics["on_track"], r.Skipped)
	}
	return w.Flush()
}
