package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// series collects one value per non-skipped tick.
type series struct {
	name   string
	values []float64
	pick   func(dynamo.Sample) float64
}

func (s *series) Name() string { return s.name }

func (s *series) Observe(smp dynamo.Sample) {
	if smp.Skipped {
		return
	}
	s.values = append(s.values, s.pick(smp))
}

func (s *series) Reset() { s.values = s.values[:0] }

// RMS is the root mean square of a per-tick quantity.
type RMS struct{ series }

func (r *RMS) Value() float64 {
	if len(r.values) == 0 {
		return 0
	}
	sq := make([]float64, len(r.values))
	floats.MulTo(sq, r.values, r.values)
	return math.Sqrt(stat.Mean(sq, nil))
}

// NewCTERMS measures the true distance to the track, not the fitted cte.
func NewCTERMS() *RMS {
	return &RMS{series{name: "cte_rms", pick: func(s dynamo.Sample) float64 { return s.TrackError }}}
}

func NewEPsiRMS() *RMS {
	return &RMS{series{name: "epsi_rms", pick: func(s dynamo.Sample) float64 { return s.State.EPsi }}}
}

type MaxAbs struct{ series }

func (m *MaxAbs) Value() float64 {
	max := 0.0
	for _, v := range m.values {
		max = math.Max(max, math.Abs(v))
	}
	return max
}

func NewCTEMax() *MaxAbs {
	return &MaxAbs{series{name: "cte_max", pick: func(s dynamo.Sample) float64 { return s.TrackError }}}
}

// SpeedError is the mean absolute deviation from the reference speed.
type SpeedError struct {
	series
	ref float64
}

func NewSpeedError(ref float64) *SpeedError {
	return &SpeedError{series: series{name: "speed_error", pick: func(s dynamo.Sample) float64 { return s.Pose.V }}, ref: ref}
}

func (e *SpeedError) Value() float64 {
	if len(e.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range e.values {
		sum += math.Abs(v - e.ref)
	}
	return sum / float64(len(e.values))
}

// OnTrack is the fraction of ticks spent within threshold of the track.
type OnTrack struct {
	threshold  float64
	violations int
	samples    int
}

func NewOnTrack(threshold float64) *OnTrack {
	return &OnTrack{threshold: threshold}
}

func (o *OnTrack) Name() string { return "on_track" }

func (o *OnTrack) Observe(s dynamo.Sample) {
	o.samples++
	if math.Abs(s.TrackError) > o.threshold {
		o.violations++
	}
}

func (o *OnTrack) Value() float64 {
	if o.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(o.violations)/float64(o.samples)
}

func (o *OnTrack) Reset() {
	o.violations = 0
	o.samples = 0
}
