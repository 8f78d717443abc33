package dynamo

import "math"

// NormalizeAngle maps psi into (-Pi, Pi].
func NormalizeAngle(psi float64) float64 {
	if psi > -math.Pi && psi <= math.Pi {
		return psi
	}
	if math.IsNaN(psi) || math.IsInf(psi, 0) {
		return math.NaN()
	}
	a := math.Mod(psi+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	r := a - math.Pi
	if r <= -math.Pi {
		r = math.Pi
	}
	return r
}

func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }
