// Package track provides reference tracks for the offline simulator: a few
// synthetic shapes and waypoint files with one "x,y" pair per line.
package track

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/frame"
)

// Track is a polyline of waypoints in world coordinates. A closed track
// wraps from the last point back to the first.
type Track struct {
	Name   string
	Points []frame.Point
	Closed bool
}

func New(name string, pts []frame.Point, closed bool) (*Track, error) {
	if len(pts) < 2 {
		return nil, fmt.Errorf("track %s: %w: %d points", name, dynamo.ErrInsufficientPoints, len(pts))
	}
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("track %s: point %d is not finite", name, i)
		}
	}
	return &Track{Name: name, Points: pts, Closed: closed}, nil
}

// Oval is a counter-clockwise ellipse with semi-axes a and b.
func Oval(a, b float64, n int) *Track {
	pts := make([]frame.Point, n)
	for i := range pts {
		th := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = frame.Point{X: a * math.Cos(th), Y: b * math.Sin(th)}
	}
	return &Track{Name: "oval", Points: pts, Closed: true}
}

// Sine runs along +x with a sinusoidal lateral profile.
func Sine(length, amplitude, wavelength, spacing float64) *Track {
	n := int(length/spacing) + 1
	pts := make([]frame.Point, n)
	for i := range pts {
		x := float64(i) * spacing
		pts[i] = frame.Point{X: x, Y: amplitude * math.Sin(2*math.Pi*x/wavelength)}
	}
	return &Track{Name: "sine", Points: pts}
}

func Straight(length, spacing float64) *Track {
	n := int(length/spacing) + 1
	pts := make([]frame.Point, n)
	for i := range pts {
		pts[i] = frame.Point{X: float64(i) * spacing}
	}
	return &Track{Name: "straight", Points: pts}
}

var builtins = map[string]func() *Track{
	"oval":     func() *Track { return Oval(120, 60, 180) },
	"sine":     func() *Track { return Sine(2000, 12, 160, 5) },
	"straight": func() *Track { return Straight(2000, 5) },
}

// Names lists the built-in tracks.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a built-in track, or loads a waypoint file when name is a path
// ending in .csv. Waypoint files describe a closed lap.
func Get(name string) (*Track, error) {
	if build, ok := builtins[name]; ok {
		return build(), nil
	}
	if strings.HasSuffix(name, ".csv") {
		return LoadFile(name)
	}
	return nil, fmt.Errorf("unknown track %q (available: %v or a .csv file)", name, Names())
}

func LoadFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(path, f)
}

// Read parses "x,y" lines. A header line whose fields are not numbers is
// skipped, as are extra columns.
func Read(name string, r io.Reader) (*Track, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var pts []frame.Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", name, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("track %s line %d: expected x,y", name, line)
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errX != nil || errY != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("track %s line %d: %v", name, line, errors.Join(errX, errY))
		}
		pts = append(pts, frame.Point{X: x, Y: y})
	}
	return New(name, pts, true)
}

func (t *Track) Len() int { return len(t.Points) }

func (t *Track) segments() int {
	if t.Closed {
		return len(t.Points)
	}
	return len(t.Points) - 1
}

func (t *Track) at(i int) frame.Point {
	n := len(t.Points)
	return t.Points[((i%n)+n)%n]
}

// Length is the total polyline length.
func (t *Track) Length() float64 {
	total := 0.0
	for i := 0; i < t.segments(); i++ {
		a, b := t.at(i), t.at(i+1)
		total += math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return total
}

// Project finds the closest point on the polyline to (x, y). It returns the
// segment index, the distance along the track and the signed lateral
// distance, positive when (x, y) lies left of the direction of travel.
func (t *Track) Project(x, y float64) (seg int, station, lateral float64) {
	best := math.Inf(1)
	along := 0.0
	for i := 0; i < t.segments(); i++ {
		a, b := t.at(i), t.at(i+1)
		dx, dy := b.X-a.X, b.Y-a.Y
		l2 := dx*dx + dy*dy
		l := math.Sqrt(l2)

		u := 0.0
		if l2 > 0 {
			u = math.Max(0, math.Min(1, ((x-a.X)*dx+(y-a.Y)*dy)/l2))
		}
		px, py := a.X+u*dx, a.Y+u*dy
		d := math.Hypot(x-px, y-py)
		if d < best {
			best = d
			seg = i
			station = along + u*l
			lateral = d
			if dx*(y-a.Y)-dy*(x-a.X) < 0 {
				lateral = -d
			}
		}
		along += l
	}
	return seg, station, lateral
}

// CrossTrack is the signed lateral distance from (x, y) to the track.
func (t *Track) CrossTrack(x, y float64) float64 {
	_, _, lat := t.Project(x, y)
	return lat
}

// Heading is the direction of travel along segment i.
func (t *Track) Heading(i int) float64 {
	if !t.Closed && i >= len(t.Points)-1 {
		i = len(t.Points) - 2
	}
	a, b := t.at(i), t.at(i+1)
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// Window returns up to n waypoints starting with the first one ahead of the
// vehicle, the way the simulator reports them.
func (t *Track) Window(pose dynamo.Pose, n int) (xs, ys []float64) {
	seg, _, _ := t.Project(pose.X, pose.Y)
	start := seg + 1
	if !t.Closed && start >= len(t.Points) {
		start = len(t.Points) - 1
	}

	xs = make([]float64, 0, n)
	ys = make([]float64, 0, n)
	for i := start; len(xs) < n; i++ {
		if !t.Closed && i >= len(t.Points) {
			break
		}
		if t.Closed && i-start >= len(t.Points) {
			break
		}
		p := t.at(i)
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	return xs, ys
}

// Start returns a pose on the first segment facing along the track, shifted
// sideways by offset (positive to the left).
func (t *Track) Start(speed, offset float64) dynamo.Pose {
	p := t.Points[0]
	psi := t.Heading(0)
	return dynamo.Pose{
		X:   p.X - offset*math.Sin(psi),
		Y:   p.Y + offset*math.Cos(psi),
		Psi: psi,
		V:   speed,
	}
}

// Finished reports whether an open track has been driven to its end.
func (t *Track) Finished(pose dynamo.Pose) bool {
	if t.Closed {
		return false
	}
	seg, _, _ := t.Project(pose.X, pose.Y)
	if seg < t.segments()-1 {
		return false
	}
	last := t.Points[len(t.Points)-1]
	psi := t.Heading(seg)
	return (pose.X-last.X)*math.Cos(psi)+(pose.Y-last.Y)*math.Sin(psi) >= 0
}
