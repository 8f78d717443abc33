package mpc

import (
	"math"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/polyfit"
)

// EstimateErrors reads the tracking errors of a vehicle at the origin of its
// own frame: cte is the curve value at x=0 and epsi the negated angle of its
// tangent there.
func EstimateErrors(ref polyfit.Poly) (cte, epsi float64) {
	if len(ref) == 0 {
		return 0, 0
	}
	cte = ref.Eval(0)
	epsi = -math.Atan(ref.Slope(0))
	return cte, epsi
}

// InitialState is the optimizer's starting tuple for a vehicle at the origin
// of its own frame moving at speed v.
func InitialState(v float64, ref polyfit.Poly) dynamo.VehicleState {
	cte, epsi := EstimateErrors(ref)
	return dynamo.VehicleState{V: v, CTE: cte, EPsi: epsi}
}
