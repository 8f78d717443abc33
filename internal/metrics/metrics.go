// Package metrics scores a closed-loop run one sample at a time.
package metrics

import (
	"fmt"
	"sort"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// OnTrackThreshold is the lateral distance, in metres, beyond which the
// vehicle counts as off the road.
const OnTrackThreshold = 2.0

var registry = map[string]func(refSpeed float64) dynamo.Metric{
	"cte_rms":          func(float64) dynamo.Metric { return NewCTERMS() },
	"epsi_rms":         func(float64) dynamo.Metric { return NewEPsiRMS() },
	"cte_max":          func(float64) dynamo.Metric { return NewCTEMax() },
	"speed_error":      func(ref float64) dynamo.Metric { return NewSpeedError(ref) },
	"control_effort":   func(float64) dynamo.Metric { return NewControlEffort() },
	"steer_smoothness": func(float64) dynamo.Metric { return NewSteerSmoothness() },
	"on_track":         func(float64) dynamo.Metric { return NewOnTrack(OnTrackThreshold) },
	"solve_ms_p95":     func(float64) dynamo.Metric { return NewSolveP95() },
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func New(name string, refSpeed float64) (dynamo.Metric, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q (available: %v)", name, Names())
	}
	return build(refSpeed), nil
}

// All returns a fresh instance of every metric.
func All(refSpeed float64) []dynamo.Metric {
	out := make([]dynamo.Metric, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name](refSpeed))
	}
	return out
}
