package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

// Evaluate scores one parameter set. Lower is better.
type Evaluate func(ctx context.Context, params map[string]float64) (float64, error)

type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters, %d ranges", dynamo.ErrDimensionMismatch, len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		point := make(map[string]float64, len(current))
		for k, v := range current {
			point[k] = v
		}
		*out = append(*out, point)
		return
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		g.enumerate(depth+1, current, out)
	}
	delete(current, name)
}

// Search evaluates every grid point, in parallel, and returns the best trial
// with all trials in grid order. Failed evaluations score +Inf.
func (g *GridSearch) Search(ctx context.Context, eval Evaluate) (Trial, []Trial, error) {
	points := g.Points()
	trials := make([]Trial, len(points))

	dynamo.ParallelFor(len(points), 1, func(start, end int) {
		for i := start; i < end; i++ {
			trials[i].Params = points[i]
			if err := ctx.Err(); err != nil {
				trials[i].Score, trials[i].Err = math.Inf(1), err
				continue
			}
			score, err := eval(ctx, points[i])
			if err != nil || math.IsNaN(score) {
				score = math.Inf(1)
			}
			trials[i].Score, trials[i].Err = score, err
		}
	})

	if err := ctx.Err(); err != nil {
		return Trial{}, trials, err
	}

	best := -1
	for i, tr := range trials {
		if tr.Err == nil && (best < 0 || tr.Score < trials[best].Score) {
			best = i
		}
	}
	if best < 0 {
		return Trial{}, trials, fmt.Errorf("all %d evaluations failed: %w", len(trials), trials[0].Err)
	}
	return trials[best], trials, nil
}
