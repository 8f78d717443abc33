package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// ControlEffort is the mean of |steering| + |throttle| over issued commands.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s dynamo.Sample) {
	if s.Skipped {
		return
	}
	c.sum += math.Abs(s.Command.Steering) + math.Abs(s.Command.Throttle)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// SteerSmoothness is the mean absolute change of the steering command
// between consecutive issued commands. Lower is smoother.
type SteerSmoothness struct {
	prev    float64
	have    bool
	sum     float64
	samples int
}

func NewSteerSmoothness() *SteerSmoothness {
	return &SteerSmoothness{}
}

func (s *SteerSmoothness) Name() string { return "steer_smoothness" }

func (s *SteerSmoothness) Observe(smp dynamo.Sample) {
	if smp.Skipped {
		return
	}
	if s.have {
		s.sum += math.Abs(smp.Command.Steering - s.prev)
		s.samples++
	}
	s.prev = smp.Command.Steering
	s.have = true
}

func (s *SteerSmoothness) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *SteerSmoothness) Reset() {
	*s = SteerSmoothness{}
}

// SolveP95 is the 95th percentile solve time in milliseconds.
type SolveP95 struct {
	ms []float64
}

func NewSolveP95() *SolveP95 {
	return &SolveP95{}
}

func (p *SolveP95) Name() string { return "solve_ms_p95" }

func (p *SolveP95) Observe(s dynamo.Sample) {
	if s.SolveTime > 0 {
		p.ms = append(p.ms, float64(s.SolveTime.Microseconds())/1000)
	}
}

func (p *SolveP95) Value() float64 {
	if len(p.ms) == 0 {
		return 0
	}
	sorted := append([]float64(nil), p.ms...)
	sort.Float64s(sorted)
	return stat.Quantile(0.95, stat.Empirical, sorted, nil)
}

func (p *SolveP95) Reset() { p.ms = p.ms[:0] }
