package viz

import (
	"math"
	"strings"

	"github.com/san-kum/mpcdrive/internal/frame"
)

const blank = 0x2800

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a character grid addressed in dots, Width*2 by Height*4.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y). Dots off the canvas are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Polyline joins consecutive world points through vp.
func (c *Canvas) Polyline(vp Viewport, pts []frame.Point, closed bool) {
	if len(pts) == 0 {
		return
	}
	px, py := vp.Map(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		x, y := vp.Map(p.X, p.Y)
		c.DrawLine(px, py, x, y)
		px, py = x, y
	}
	if closed {
		x, y := vp.Map(pts[0].X, pts[0].Y)
		c.DrawLine(px, py, x, y)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps world metres to canvas dots with equal scale on both axes,
// y pointing up.
type Viewport struct {
	cx, cy float64
	scale  float64
	w, h   int
}

// Fit centres the box [minX, maxX] x [minY, maxY] on the canvas.
func Fit(c *Canvas, minX, minY, maxX, maxY float64) Viewport {
	w, h := c.Width*2, c.Height*4
	spanX := math.Max(maxX-minX, 1e-6)
	spanY := math.Max(maxY-minY, 1e-6)
	scale := math.Min(float64(w-1)/spanX, float64(h-1)/spanY)
	return Viewport{cx: (minX + maxX) / 2, cy: (minY + maxY) / 2, scale: scale, w: w, h: h}
}

func (v Viewport) Map(x, y float64) (int, int) {
	px := float64(v.w-1)/2 + (x-v.cx)*v.scale
	py := float64(v.h-1)/2 - (y-v.cy)*v.scale
	return int(math.Round(px)), int(math.Round(py))
}

// Bounds returns the bounding box of pts grown by pad on every side.
func Bounds(pts []frame.Point, pad float64) (minX, minY, maxX, maxY float64) {
	if len(pts) == 0 {
		return -pad, -pad, pad, pad
	}
	minX, maxX = pts[0].X, pts[0].X
	minY, maxY = pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return minX - pad, minY - pad, maxX + pad, maxY + pad
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
