package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/mpcdrive/internal/experiment"
	"github.com/san-kum/mpcdrive/internal/server"
	"github.com/san-kum/mpcdrive/internal/telemetry"
)

var (
	addr          string
	onFailure     string
	responseDelay time.Duration
	inputFile     string
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the controller to the simulator over a websocket",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&addr, "addr", ":4567", "listen address")
	cmd.Flags().StringVar(&onFailure, "on-failure", "skip", "reply when a solve fails (skip, hold, brake)")
	cmd.Flags().DurationVar(&responseDelay, "delay", 100*time.Millisecond, "delay before each reply")
	cmd.Flags().StringVar(&controller, "controller", "mpc", "controller (mpc, pid)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("on-failure") {
		cfg.Server.OnFailure = onFailure
	}
	if flags.Changed("delay") {
		cfg.Server.ResponseDelay = responseDelay
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctrl, err := experiment.NewRegistry().GetController(controller, cfg, controlPeriod(cfg), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server, ctrl, server.WithLogger(logger))
	return srv.ListenAndServe(ctx)
}

func solveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "answer one telemetry frame read from a file or stdin",
		Long: `solve decodes one 42["telemetry",{...}] frame, runs a single planning
cycle and prints the steer frame the server would send back.`,
		RunE: runSolve,
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "-", "telemetry frame file, - for stdin")
	cmd.Flags().StringVar(&controller, "controller", "mpc", "controller (mpc, pid)")
	return cmd
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var in io.Reader = os.Stdin
	if inputFile != "-" {
		f, err := os.Open(inputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	frame, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	kind, obs, err := telemetry.Decode([]byte(strings.TrimSpace(string(frame))))
	if err != nil {
		return err
	}
	if kind != telemetry.Telemetry {
		return fmt.Errorf("expected a telemetry frame, got %s", kind)
	}

	ctrl, err := experiment.NewRegistry().GetController(controller, cfg, controlPeriod(cfg), logger)
	if err != nil {
		return err
	}
	out, err := ctrl.Step(cmd.Context(), obs)
	if err != nil {
		return err
	}

	reply, err := telemetry.EncodeSteer(telemetry.NewSteer(out.Command, out.MPCX, out.MPCY, out.NextX, out.NextY))
	if err != nil {
		return err
	}
	fmt.Println(string(reply))

	if out.Plan != nil {
		fmt.Fprintf(os.Stderr, "status=%s cost=%.4g iterations=%d violation=%.2g elapsed=%s\n",
			out.Plan.Status, out.Plan.Cost, out.Plan.Iterations, out.Plan.Violation, out.Elapsed)
	}
	return nil
}
