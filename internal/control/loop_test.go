package control_test

import (
	"context"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/control"
	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// lane returns waypoints ahead of a vehicle at (x0, y0) heading psi, offset
// sideways by lateral (positive to the left).
func lane(x0, y0, psi, lateral float64) ([]float64, []float64) {
	xs := make([]float64, 0, 6)
	ys := make([]float64, 0, 6)
	for i := 1; i <= 6; i++ {
		along := 6 * float64(i)
		xs = append(xs, x0+along*math.Cos(psi)-lateral*math.Sin(psi))
		ys = append(ys, y0+along*math.Sin(psi)+lateral*math.Cos(psi))
	}
	return xs, ys
}

var _ = Describe("Loop", func() {
	var (
		cfg  *config.Config
		loop *control.Loop
		ctx  context.Context
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		ctx = context.Background()
		var err error
		loop, err = control.NewLoop(cfg, nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	Context("on a straight lane ahead", func() {
		It("holds the wheel and accelerates", func() {
			xs, ys := lane(0, 0, 0, 0)
			out, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{V: 10},
				WaypointsX: xs,
				WaypointsY: ys,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Command.Steering).To(BeNumerically("~", 0, 1e-4))
			Expect(out.Command.Throttle).To(BeNumerically(">", 0))
			Expect(out.State.CTE).To(BeNumerically("~", 0, 1e-9))
		})

		It("does not depend on where the vehicle is in the world", func() {
			psi := math.Pi / 2
			xs, ys := lane(120, -45, psi, 0)
			out, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{X: 120, Y: -45, Psi: psi, V: 10},
				WaypointsX: xs,
				WaypointsY: ys,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Command.Steering).To(BeNumerically("~", 0, 1e-4))
			Expect(out.State.EPsi).To(BeNumerically("~", 0, 1e-6))
		})

		It("returns the predicted and reference points", func() {
			xs, ys := lane(0, 0, 0, 0)
			out, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{V: 10},
				WaypointsX: xs,
				WaypointsY: ys,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.MPCX).To(HaveLen(cfg.Horizon.Steps - 1))
			Expect(out.MPCY).To(HaveLen(cfg.Horizon.Steps - 1))
			Expect(out.NextX).To(HaveLen(cfg.Visualization.RefPoints))
			Expect(out.NextX[0]).To(BeNumerically("~", cfg.Visualization.RefSpacing, 1e-12))
			Expect(out.Plan).NotTo(BeNil())
		})
	})

	Context("with the lane offset to one side", func() {
		It("steers toward a lane on the left", func() {
			xs, ys := lane(0, 0, 0, 2)
			out, err := loop.Step(ctx, dynamo.Observation{Pose: dynamo.Pose{V: 15}, WaypointsX: xs, WaypointsY: ys})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.State.CTE).To(BeNumerically(">", 0))
			Expect(out.Actuation.Delta).To(BeNumerically(">", 0))
			// the simulator steers clockwise for positive values
			Expect(out.Command.Steering).To(BeNumerically("<", 0))
		})

		It("steers toward a lane on the right", func() {
			xs, ys := lane(0, 0, 0, -2)
			out, err := loop.Step(ctx, dynamo.Observation{Pose: dynamo.Pose{V: 15}, WaypointsX: xs, WaypointsY: ys})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Command.Steering).To(BeNumerically(">", 0))
		})

		It("keeps the wire command within [-1, 1]", func() {
			xs, ys := lane(0, 0, 0, 8)
			out, err := loop.Step(ctx, dynamo.Observation{Pose: dynamo.Pose{V: 15}, WaypointsX: xs, WaypointsY: ys})
			Expect(err).NotTo(HaveOccurred())
			Expect(math.Abs(out.Command.Steering)).To(BeNumerically("<=", 1))
			Expect(math.Abs(out.Command.Throttle)).To(BeNumerically("<=", cfg.Vehicle.MaxThrottle))
		})
	})

	Context("with a command in flight", func() {
		It("plans from the projected pose", func() {
			xs, ys := lane(0, 0, 0, 0)
			obs := dynamo.Observation{
				Pose:       dynamo.Pose{V: 10},
				WaypointsX: xs,
				WaypointsY: ys,
				Previous:   dynamo.Command{Steering: 0.5, Throttle: 1},
			}
			out, err := loop.Step(ctx, obs)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Projected.X).To(BeNumerically("~", 10*cfg.Latency, 1e-12))
			Expect(out.Projected.V).To(BeNumerically("~", 10+cfg.Latency, 1e-12))
			// positive wire steering turns clockwise
			Expect(out.Projected.Psi).To(BeNumerically("<", 0))
		})
	})

	Context("with bad telemetry", func() {
		It("rejects mismatched waypoint arrays", func() {
			_, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{V: 10},
				WaypointsX: []float64{1, 2, 3, 4, 5},
				WaypointsY: []float64{0, 0, 0, 0},
			})
			Expect(err).To(MatchError(dynamo.ErrMalformedTelemetry))
		})

		It("rejects too few waypoints for the fit", func() {
			_, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{V: 10},
				WaypointsX: []float64{1, 2, 3},
				WaypointsY: []float64{0, 0, 0},
			})
			Expect(err).To(MatchError(dynamo.ErrInsufficientPoints))
		})

		It("rejects a pose with NaN", func() {
			xs, ys := lane(0, 0, 0, 0)
			_, err := loop.Step(ctx, dynamo.Observation{
				Pose:       dynamo.Pose{X: math.NaN(), V: 10},
				WaypointsX: xs,
				WaypointsY: ys,
			})
			Expect(err).To(MatchError(dynamo.ErrMalformedTelemetry))
		})
	})

	It("refuses an invalid configuration", func() {
		cfg.Horizon.Steps = 0
		_, err := control.NewLoop(cfg, nil, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("PID", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.DefaultConfig()
	})

	It("steers toward the lane", func() {
		pid := control.NewPID(cfg, 100*time.Millisecond)
		xs, ys := lane(0, 0, 0, 1.5)
		out, err := pid.Step(context.Background(), dynamo.Observation{Pose: dynamo.Pose{V: 10}, WaypointsX: xs, WaypointsY: ys})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Actuation.Delta).To(BeNumerically(">", 0))
		Expect(out.Command.Throttle).To(BeNumerically(">", 0))
		Expect(out.MPCX).To(BeEmpty())
	})

	It("saturates at the steering lock", func() {
		pid := control.NewPID(cfg, 100*time.Millisecond)
		xs, ys := lane(0, 0, 0, -40)
		out, err := pid.Step(context.Background(), dynamo.Observation{Pose: dynamo.Pose{V: 10}, WaypointsX: xs, WaypointsY: ys})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Command.Steering).To(BeNumerically("~", 1, 1e-12))
	})

	It("starts over after a reset", func() {
		pid := control.NewPID(cfg, 100*time.Millisecond)
		xs, ys := lane(0, 0, 0, 1.5)
		obs := dynamo.Observation{Pose: dynamo.Pose{V: 10}, WaypointsX: xs, WaypointsY: ys}

		first, err := pid.Step(context.Background(), obs)
		Expect(err).NotTo(HaveOccurred())
		second, err := pid.Step(context.Background(), obs)
		Expect(err).NotTo(HaveOccurred())
		// integral keeps growing on a constant error
		Expect(second.Actuation.Delta).NotTo(Equal(first.Actuation.Delta))

		pid.Reset()
		again, err := pid.Step(context.Background(), obs)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Actuation.Delta).To(BeNumerically("~", first.Actuation.Delta, 1e-12))
	})
})
