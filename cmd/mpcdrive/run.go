package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/mpcdrive/internal/analysis"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/experiment"
	"github.com/san-kum/mpcdrive/internal/export"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/storage"
	"github.com/san-kum/mpcdrive/internal/track"
	"github.com/san-kum/mpcdrive/internal/viz"
)

var (
	save       bool
	plotDir    string
	plotFormat string
	frameRate  int
	theme      string
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [track]",
		Short: "drive a simulated vehicle around a track",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	simFlags(cmd)
	cmd.Flags().BoolVar(&save, "save", true, "store the run in the data directory")
	cmd.Flags().StringVar(&plotDir, "plot", "", "write path and tracking plots into this directory")
	cmd.Flags().StringVar(&plotFormat, "format", "png", "plot format (png, svg, pdf)")
	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	exp, err := experiment.New(cfg, controller, logger)
	if err != nil {
		return err
	}
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("driving %s with %s...\n", cfg.Sim.Track, controller)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	meta := storage.NewMetadata(controller, cfg.Sim.Integrator, exp.SimConfig(), result)
	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("ticks: %d (skipped %d)\n", meta.Ticks, meta.Skipped)
	if result.Finished {
		fmt.Println("reached the end of the track")
	}
	printMetrics(result.Metrics)
	printOscillation(analysis.Oscillation(result.Samples, exp.SimConfig().Period))

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(meta, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nrun id: %s\n", runID)
	}

	if plotDir != "" {
		files, err := export.SavePlots(plotDir, plotFormat, exp.Track(), result)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("wrote %s\n", f)
		}
	}
	return nil
}

func printMetrics(m map[string]float64) {
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(m) {
		fmt.Printf("  %-18s %.6f\n", name, m[name])
	}
}

func printOscillation(rep analysis.Report) {
	fmt.Println("\nsteering:")
	fmt.Printf("  dominant   %.3f hz (%.0f%% of power)\n", rep.DominantHz, 100*rep.Share)
	fmt.Printf("  crossings  %d\n", rep.ZeroCrossings)
	fmt.Printf("  rms        %.4f\n", rep.RMS)
	if rep.Weaving() {
		fmt.Println("  warning: steering is weaving; consider raising weights.steer_rate")
	}
}

func liveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live [track]",
		Short: "drive a simulated vehicle with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	simFlags(cmd)
	cmd.Flags().IntVar(&frameRate, "fps", 0, "frame rate, 0 for real time")
	cmd.Flags().StringVar(&theme, "theme", "cyberpunk", "color theme")
	return cmd
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	// The dashboard owns the terminal; keep the logger quiet.
	cfg.Log.Level = "error"
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, controller, logger)
	if err != nil {
		return err
	}
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return err
	}

	period := controlPeriod(cfg)
	if frameRate > 0 {
		period = time.Second / time.Duration(frameRate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	title := fmt.Sprintf("%s / %s", cfg.Sim.Track, controller)
	return viz.Run(ctx, viz.NewModel(ctx, exp.Simulator(), title, period, theme))
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := storage.New(dataDir).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRACK\tCTRL\tTIME\tTICKS\tSKIPPED\tCTE RMS\tON TRACK")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.3f\t%.0f%%\n",
					run.ID,
					run.Track,
					run.Controller,
					run.Timestamp.Local().Format("2006-01-02 15:04:05"),
					run.Ticks,
					run.Skipped,
					run.Metrics["cte_rms"],
					100*run.Metrics["on_track"],
				)
			}
			return w.Flush()
		},
	}
}

// loadRun reads a stored run back into a result.
func loadRun(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("run %s has no samples", runID)
	}
	return meta, &sim.Result{Track: meta.Track, Samples: samples, Metrics: meta.Metrics, Finished: meta.Finished}, nil
}

func plotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	cmd.Flags().StringVar(&plotDir, "out", "", "also write image plots into this directory")
	cmd.Flags().StringVar(&plotFormat, "format", "png", "image plot format (png, svg, pdf)")
	return cmd
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("track: %s  controller: %s\n", meta.Track, meta.Controller)
	fmt.Printf("samples: %d\n\n", len(result.Samples))

	series := []struct {
		caption string
		value   func(dynamo.Sample) float64
	}{
		{"track error (m)", func(s dynamo.Sample) float64 { return s.TrackError }},
		{"speed (m/s)", func(s dynamo.Sample) float64 { return s.Pose.V }},
		{"steering", func(s dynamo.Sample) float64 { return s.Command.Steering }},
		{"throttle", func(s dynamo.Sample) float64 { return s.Command.Throttle }},
	}
	for _, sr := range series {
		data := make([]float64, len(result.Samples))
		for i, s := range result.Samples {
			data[i] = sr.value(s)
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(sr.caption),
		))
		fmt.Println()
	}

	if plotDir == "" {
		return nil
	}
	tr, err := track.Get(meta.Track)
	if err != nil {
		return err
	}
	files, err := export.SavePlots(plotDir, plotFormat, tr, result)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("wrote %s\n", f)
	}
	return nil
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "steering frequency analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	steer := make([]float64, len(result.Samples))
	for i, s := range result.Samples {
		steer[i] = s.Command.Steering
	}
	rate := 1 / meta.Period
	freqs, power := analysis.PowerSpectrum(steer, rate)
	if len(power) < 2 {
		return fmt.Errorf("not enough samples for a spectrum")
	}

	fmt.Printf("frequency analysis: %s\n\n", meta.ID)
	fmt.Println(asciigraph.Plot(power[1:],
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("steering power, %.3f to %.3f hz", freqs[1], freqs[len(freqs)-1])),
	))
	rep := analysis.Oscillation(result.Samples, meta.Period)
	printOscillation(rep)
	if rep.DominantHz > 0 {
		fmt.Printf("  period     %.3f s\n", 1/rep.DominantHz)
	}
	return nil
}

func exportJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, result, err := loadRun(args[0])
			if err != nil {
				return err
			}
			return export.WriteJSON(os.Stdout, *meta, result)
		},
	}
}

func exportCSVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, result, err := loadRun(args[0])
			if err != nil {
				return err
			}
			return storage.WriteSamples(os.Stdout, result.Samples)
		},
	}
}
