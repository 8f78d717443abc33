package nlp

import (
	"context"
	"fmt"
	"time"
)

type Status int

const (
	Solved Status = iota
	Acceptable
	Infeasible
	Diverged
	IterationLimit
	Failed
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case Acceptable:
		return "acceptable"
	case Infeasible:
		return "infeasible"
	case Diverged:
		return "diverged"
	case IterationLimit:
		return "iteration_limit"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// OK reports whether the point may be used.
func (s Status) OK() bool {
	return s == Solved || s == Acceptable
}

type Result struct {
	X          []float64
	Objective  float64
	Status     Status
	Iterations int
	Violation  float64
	Message    string
}

// Solver returns an error only when the problem is malformed or the context
// ends; numerical failure is reported through Result.Status.
type Solver interface {
	Solve(ctx context.Context, p *Problem, x0 []float64) (*Result, error)
	Name() string
}

type Options struct {
	// Tolerance is the relative optimality tolerance.
	Tolerance float64
	// FeasibilityTol bounds the constraint violation of a Solved point.
	FeasibilityTol float64
	// AcceptableTol bounds the constraint violation of an Acceptable point.
	AcceptableTol float64
	MaxEval       int
	MaxTime       time.Duration
}

func DefaultOptions() Options {
	return Options{
		Tolerance:      1e-8,
		FeasibilityTol: 1e-7,
		AcceptableTol:  1e-4,
		MaxEval:        2000,
	}
}

var Backends = []string{"auglag", "slsqp"}

func New(backend string, opts Options) (Solver, error) {
	switch backend {
	case "auglag", "":
		return NewAugLag(opts), nil
	case "slsqp":
		return newSLSQP(opts)
	default:
		return nil, fmt.Errorf("nlp: unknown backend %q (available: %v)", backend, Backends)
	}
}

// classify maps a converged point's violation to a status.
func classify(opts Options, violation float64) Status {
	switch {
	case violation <= opts.FeasibilityTol:
		return Solved
	case violation <= opts.AcceptableTol:
		return Acceptable
	default:
		return Infeasible
	}
}
