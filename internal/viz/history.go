package viz

import (
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/frame"
)

const historyCapacity = 300

// history records the recent ticks of a simulator as a dynamo.Observer.
type history struct {
	last       dynamo.Sample
	trail      []frame.Point
	cteHistory []float64
	solveMs    []float64
	skipped    int
}

var _ dynamo.Observer = (*history)(nil)

func newHistory() *history {
	return &history{
		trail:      make([]frame.Point, 0, historyCapacity),
		cteHistory: make([]float64, 0, historyCapacity),
		solveMs:    make([]float64, 0, historyCapacity),
	}
}

func (h *history) OnTick(s dynamo.Sample) {
	h.last = s
	if s.Skipped {
		h.skipped++
	}
	h.trail = push(h.trail, frame.Point{X: s.Pose.X, Y: s.Pose.Y})
	h.cteHistory = push(h.cteHistory, s.TrackError)
	h.solveMs = push(h.solveMs, float64(s.SolveTime.Microseconds())/1000)
}

func (h *history) reset() {
	h.last = dynamo.Sample{}
	h.trail = h.trail[:0]
	h.cteHistory = h.cteHistory[:0]
	h.solveMs = h.solveMs[:0]
	h.skipped = 0
}

func push[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}
