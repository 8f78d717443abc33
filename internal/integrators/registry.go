package integrators

import (
	"fmt"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

var Names = []string{"euler", "rk4"}

// New returns a fresh integrator by name.
func New(name string) (dynamo.Integrator, error) {
	switch name {
	case "euler":
		return NewEuler(), nil
	case "rk4", "":
		return NewRK4(), nil
	default:
		return nil, fmt.Errorf("unknown integrator %q (available: %v)", name, Names)
	}
}
