package mpc

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/mpcdrive/internal/polyfit"
)

const (
	locX = iota
	locY
	locPsi
	locV
	locCTE
	locEPsi
	locDelta
	locA
	numLocal
)

// transition is the discrete kinematic model over one horizon step.
type transition struct {
	ref   polyfit.Poly
	slope polyfit.Poly
	lf    float64
	dt    float64
}

func newTransition(ref polyfit.Poly, lf, dt float64) transition {
	return transition{ref: ref, slope: ref.Derivative(), lf: lf, dt: dt}
}

func (m transition) next(s [numLocal]float64) [numStateKinds]float64 {
	x, y, psi, v := s[locX], s[locY], s[locPsi], s[locV]
	epsi, delta, a := s[locEPsi], s[locDelta], s[locA]
	yaw := v * delta / m.lf * m.dt
	return [numStateKinds]float64{
		x + v*math.Cos(psi)*m.dt,
		y + v*math.Sin(psi)*m.dt,
		psi + yaw,
		v + a*m.dt,
		(m.ref.Eval(x) - y) + v*math.Sin(epsi)*m.dt,
		(psi - math.Atan(m.slope.Eval(x))) + yaw,
	}
}

func (m transition) nextDual(s [numLocal]dual.Number) [numStateKinds]dual.Number {
	x, y, psi, v := s[locX], s[locY], s[locPsi], s[locV]
	epsi, delta, a := s[locEPsi], s[locDelta], s[locA]
	yaw := dual.Scale(m.dt/m.lf, dual.Mul(v, delta))
	return [numStateKinds]dual.Number{
		dual.Add(x, dual.Scale(m.dt, dual.Mul(v, dual.Cos(psi)))),
		dual.Add(y, dual.Scale(m.dt, dual.Mul(v, dual.Sin(psi)))),
		dual.Add(psi, yaw),
		dual.Add(v, dual.Scale(m.dt, a)),
		dual.Add(dual.Sub(m.ref.EvalDual(x), y), dual.Scale(m.dt, dual.Mul(v, dual.Sin(epsi)))),
		dual.Add(dual.Sub(psi, dual.Atan(m.slope.EvalDual(x))), yaw),
	}
}

// jacobian returns d next_k / d s_j for all k, j.
func (m transition) jacobian(s [numLocal]float64) [numStateKinds][numLocal]float64 {
	var jac [numStateKinds][numLocal]float64
	var in [numLocal]dual.Number
	for i := range s {
		in[i] = dual.Number{Real: s[i]}
	}
	for j := 0; j < numLocal; j++ {
		in[j].Emag = 1
		out := m.nextDual(in)
		for k := range out {
			jac[k][j] = out[k].Emag
		}
		in[j].Emag = 0
	}
	return jac
}
