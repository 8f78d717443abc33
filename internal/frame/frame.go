// Package frame converts points between the world frame and a vehicle frame
// centred on a pose with the heading along +x.
package frame

import (
	"math"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

type Point struct {
	X, Y float64
}

// Points zips paired coordinate slices. The shorter slice bounds the result.
func Points(xs, ys []float64) []Point {
	n := min(len(xs), len(ys))
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		pts[i] = Point{xs[i], ys[i]}
	}
	return pts
}

// Split is the inverse of Points.
func Split(pts []Point) (xs, ys []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}

// ToVehicle translates by the negated origin position and rotates by -psi.
func ToVehicle(origin dynamo.Pose, pts []Point) []Point {
	sin, cos := math.Sincos(origin.Psi)
	out := make([]Point, len(pts))
	for i, p := range pts {
		dx := p.X - origin.X
		dy := p.Y - origin.Y
		out[i] = Point{
			X: dx*cos + dy*sin,
			Y: -dx*sin + dy*cos,
		}
	}
	return out
}

// ToWorld rotates by +psi and translates by the origin position.
func ToWorld(origin dynamo.Pose, pts []Point) []Point {
	sin, cos := math.Sincos(origin.Psi)
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{
			X: origin.X + p.X*cos - p.Y*sin,
			Y: origin.Y + p.X*sin + p.Y*cos,
		}
	}
	return out
}
