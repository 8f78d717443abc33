package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

func feed(m dynamo.Metric, samples ...dynamo.Sample) float64 {
	for _, s := range samples {
		m.Observe(s)
	}
	return m.Value()
}

func TestRMS(t *testing.T) {
	got := feed(NewCTERMS(),
		dynamo.Sample{TrackError: 3},
		dynamo.Sample{TrackError: -4},
		dynamo.Sample{TrackError: 100, Skipped: true},
	)
	expected := math.Sqrt((9 + 16) / 2.0)
	if math.Abs(got-expected) > 1e-12 {
		t.Errorf("expected %f, got %f", expected, got)
	}
}

func TestCTEMax(t *testing.T) {
	if got := feed(NewCTEMax(), dynamo.Sample{TrackError: 1}, dynamo.Sample{TrackError: -2.5}); got != 2.5 {
		t.Errorf("expected 2.5, got %f", got)
	}
}

func TestSpeedError(t *testing.T) {
	got := feed(NewSpeedError(40), dynamo.Sample{Pose: dynamo.Pose{V: 30}}, dynamo.Sample{Pose: dynamo.Pose{V: 44}})
	if math.Abs(got-7) > 1e-12 {
		t.Errorf("expected 7, got %f", got)
	}
}

func TestOnTrack(t *testing.T) {
	m := NewOnTrack(2)
	if m.Value() != 1 {
		t.Error("expected 1 before any samples")
	}
	got := feed(m, dynamo.Sample{TrackError: 0.5}, dynamo.Sample{TrackError: -3}, dynamo.Sample{}, dynamo.Sample{TrackError: 1.9})
	if got != 0.75 {
		t.Errorf("expected 0.75, got %f", got)
	}
}

func TestSteerSmoothness(t *testing.T) {
	got := feed(NewSteerSmoothness(),
		dynamo.Sample{Command: dynamo.Command{Steering: 0.1}},
		dynamo.Sample{Command: dynamo.Command{Steering: 0.3}},
		dynamo.Sample{Skipped: true},
		dynamo.Sample{Command: dynamo.Command{Steering: -0.1}},
	)
	if math.Abs(got-0.3) > 1e-12 {
		t.Errorf("expected 0.3, got %f", got)
	}
}

func TestControlEffort(t *testing.T) {
	got := feed(NewControlEffort(),
		dynamo.Sample{Command: dynamo.Command{Steering: -0.5, Throttle: 0.5}},
		dynamo.Sample{Command: dynamo.Command{Steering: 0, Throttle: -1}},
	)
	if got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
}

func TestSolveP95(t *testing.T) {
	m := NewSolveP95()
	for i := 1; i <= 100; i++ {
		m.Observe(dynamo.Sample{SolveTime: time.Duration(i) * time.Millisecond})
	}
	if got := m.Value(); got != 95 {
		t.Errorf("expected 95, got %f", got)
	}
}

func TestReset(t *testing.T) {
	for _, m := range All(40) {
		m.Observe(dynamo.Sample{TrackError: 5, Pose: dynamo.Pose{V: 10}, Command: dynamo.Command{Steering: 1}, SolveTime: time.Millisecond})
		m.Observe(dynamo.Sample{TrackError: 5, Pose: dynamo.Pose{V: 10}, Command: dynamo.Command{Steering: -1}, SolveTime: time.Millisecond})
		m.Reset()
		expected := 0.0
		if m.Name() == "on_track" {
			expected = 1
		}
		if got := m.Value(); got != expected {
			t.Errorf("%s: expected %f after reset, got %f", m.Name(), expected, got)
		}
	}
}

func TestRegistry(t *testing.T) {
	if len(All(40)) != len(Names()) {
		t.Error("All and Names disagree")
	}
	for _, name := range Names() {
		m, err := New(name, 40)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if m.Name() != name {
			t.Errorf("expected metric %s, got %s", name, m.Name())
		}
	}
	if _, err := New("lap_time", 40); err == nil {
		t.Error("expected error for unknown metric")
	}
}
