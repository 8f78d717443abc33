package export

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/track"
)

var (
	ErrEmptyRun          = errors.New("export: run has no samples")
	ErrUnsupportedFormat = errors.New("export: unsupported plot format")
)

var Formats = []string{"png", "svg", "pdf"}

var (
	trackColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	pathColor  = color.RGBA{R: 0, G: 160, B: 80, A: 255}
	steerColor = color.RGBA{R: 200, G: 60, B: 40, A: 255}
)

// PathPlot draws the track centre line with the driven path on top.
func PathPlot(tr *track.Track, result *sim.Result) (*plot.Plot, error) {
	if len(result.Samples) == 0 {
		return nil, ErrEmptyRun
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %s", tr.Name)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	centre := make(plotter.XYs, 0, tr.Len()+1)
	for _, pt := range tr.Points {
		centre = append(centre, plotter.XY{X: pt.X, Y: pt.Y})
	}
	if tr.Closed {
		centre = append(centre, centre[0])
	}
	centreLine, err := plotter.NewLine(centre)
	if err != nil {
		return nil, err
	}
	centreLine.Color = trackColor
	centreLine.Width = vg.Points(1)
	centreLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	xs, ys := result.Path()
	driven := make(plotter.XYs, len(xs))
	for i := range xs {
		driven[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	pathLine, err := plotter.NewLine(driven)
	if err != nil {
		return nil, err
	}
	pathLine.Color = pathColor
	pathLine.Width = vg.Points(1.5)

	p.Add(centreLine, pathLine)
	p.Legend.Add("centre line", centreLine)
	p.Legend.Add("driven", pathLine)
	p.Legend.Top = true
	return p, nil
}

// ErrorPlot draws track error and normalised steering over time.
func ErrorPlot(result *sim.Result) (*plot.Plot, error) {
	if len(result.Samples) == 0 {
		return nil, ErrEmptyRun
	}

	p := plot.New()
	p.Title.Text = "Tracking"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "error (m) / steering"
	p.Add(plotter.NewGrid())

	cte := make(plotter.XYs, len(result.Samples))
	steer := make(plotter.XYs, len(result.Samples))
	for i, s := range result.Samples {
		cte[i] = plotter.XY{X: s.Time, Y: s.TrackError}
		steer[i] = plotter.XY{X: s.Time, Y: s.Command.Steering}
	}

	cteLine, err := plotter.NewLine(cte)
	if err != nil {
		return nil, err
	}
	cteLine.Color = pathColor
	cteLine.Width = vg.Points(1)

	steerLine, err := plotter.NewLine(steer)
	if err != nil {
		return nil, err
	}
	steerLine.Color = steerColor
	steerLine.Width = vg.Points(1)

	p.Add(cteLine, steerLine)
	p.Legend.Add("track error", cteLine)
	p.Legend.Add("steering", steerLine)
	p.Legend.Top = true
	return p, nil
}

// SavePlot writes p to file; the format follows the extension.
func SavePlot(p *plot.Plot, file string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	if !contains(Formats, ext) {
		return fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedFormat, ext, Formats)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 6*vg.Inch, file)
}

// SavePlots writes path.<format> and tracking.<format> into dir.
func SavePlots(dir, format string, tr *track.Track, result *sim.Result) ([]string, error) {
	pathPlot, err := PathPlot(tr, result)
	if err != nil {
		return nil, err
	}
	errPlot, err := ErrorPlot(result)
	if err != nil {
		return nil, err
	}

	files := []string{
		filepath.Join(dir, "path."+format),
		filepath.Join(dir, "tracking."+format),
	}
	for i, p := range []*plot.Plot{pathPlot, errPlot} {
		if err := SavePlot(p, files[i]); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
