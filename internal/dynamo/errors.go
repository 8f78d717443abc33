package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for control operations.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrMalformedTelemetry indicates missing or inconsistent telemetry fields.
	ErrMalformedTelemetry = errors.New("dynamo: malformed telemetry")

	// ErrInsufficientPoints indicates too few distinct waypoints for the curve fit.
	ErrInsufficientPoints = errors.New("dynamo: not enough waypoints for curve fit")

	// ErrSolverFailed indicates the trajectory problem was infeasible or diverged.
	ErrSolverFailed = errors.New("dynamo: trajectory solve failed")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// SolveError describes a solver outcome that produced no usable command.
type SolveError struct {
	Status     string
	Iterations int
	Violation  float64
	Wrapped    error
}

func (e *SolveError) Error() string {
	msg := fmt.Sprintf("%v: status=%s iterations=%d violation=%.3g", ErrSolverFailed, e.Status, e.Iterations, e.Violation)
	if e.Wrapped != nil && !errors.Is(e.Wrapped, ErrSolverFailed) {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *SolveError) Unwrap() []error {
	if e.Wrapped == nil {
		return []error{ErrSolverFailed}
	}
	return []error{ErrSolverFailed, e.Wrapped}
}

// TickError wraps an error with closed-loop context.
type TickError struct {
	Tick    int
	Time    float64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d (t=%.2f): %v", e.Tick, e.Time, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
