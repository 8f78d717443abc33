package viz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/frame"
	"github.com/san-kum/mpcdrive/internal/metrics"
	"github.com/san-kum/mpcdrive/internal/sim"
)

const (
	width        = 80
	height       = 24
	followRadius = 40.0
)

type TickMsg time.Time

// Model drives a simulator one control tick per frame and renders the track,
// the driven trail and the planned trajectory.
type Model struct {
	ctx    context.Context
	sim    *sim.Simulator
	period time.Duration
	title  string

	theme    Theme
	canvas   *Canvas
	running  bool
	follow   bool
	showHelp bool

	hist    *history
	onTrack dynamo.Metric
	err     error
}

// NewModel wraps s. period is the wall-clock delay between ticks.
func NewModel(ctx context.Context, s *sim.Simulator, title string, period time.Duration, theme string) Model {
	onTrack := metrics.NewOnTrack(metrics.OnTrackThreshold)
	s.AddMetric(onTrack)
	hist := newHistory()
	s.AddObserver(hist)
	return Model{
		ctx:     ctx,
		sim:     s,
		period:  period,
		title:   title,
		theme:   GetTheme(theme),
		canvas:  NewCanvas(width, height),
		running: true,
		hist:    hist,
		onTrack: onTrack,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.period, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.step()
			}
		case "r":
			m.reset()
		case "f":
			m.follow = !m.follow
		case "t":
			m.theme = m.theme.next()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) step() {
	if m.err != nil {
		return
	}
	_, err := m.sim.Step(m.ctx)
	var tickErr *dynamo.TickError
	switch {
	case errors.Is(err, sim.ErrFinished):
		m.running = false
	case err != nil && !errors.As(err, &tickErr):
		m.err = err
		m.running = false
	}
}

func (m *Model) reset() {
	m.sim.Reset()
	m.hist.reset()
	m.err = nil
	m.running = true
}

func (m *Model) status(st styles) string {
	switch {
	case m.err != nil:
		return st.failed.Render("FAILED: " + m.err.Error())
	case m.sim.Done():
		return st.paused.Render("FINISHED")
	case !m.running:
		return st.paused.Render("PAUSED")
	}
	return st.running.Render("RUNNING")
}

func (m *Model) draw() {
	m.canvas.Clear()
	tr := m.sim.Track()
	pose := m.sim.Pose()

	var vp Viewport
	if m.follow {
		vp = Fit(m.canvas, pose.X-followRadius, pose.Y-followRadius, pose.X+followRadius, pose.Y+followRadius)
	} else {
		minX, minY, maxX, maxY := Bounds(tr.Points, 5)
		vp = Fit(m.canvas, minX, minY, maxX, maxY)
	}

	m.canvas.Polyline(vp, tr.Points, tr.Closed)
	for _, p := range m.hist.trail {
		m.canvas.Set(vp.Map(p.X, p.Y))
	}

	if out := m.sim.Last(); out != nil && len(out.MPCX) > 0 {
		planned := frame.ToWorld(out.Projected, frame.Points(out.MPCX, out.MPCY))
		m.canvas.Polyline(vp, append([]frame.Point{{X: out.Projected.X, Y: out.Projected.Y}}, planned...), false)
	}

	cx, cy := vp.Map(pose.X, pose.Y)
	hx, hy := vp.Map(pose.X+4*math.Cos(pose.Psi), pose.Y+4*math.Sin(pose.Psi))
	m.canvas.DrawLine(cx, cy, hx, hy)
	for d := -1; d <= 1; d++ {
		m.canvas.Set(cx+d, cy)
		m.canvas.Set(cx, cy+d)
	}
}

func (m Model) View() string {
	st := m.theme.styles()
	m.draw()

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status(st) + "\n\n")

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	pose := m.sim.Pose()
	row("Time", fmt.Sprintf("%.2fs", m.sim.Time()))
	row("Speed", fmt.Sprintf("%.1f m/s", pose.V))
	row("Track err", fmt.Sprintf("%+.3f m", m.hist.last.TrackError))
	row("Heading err", fmt.Sprintf("%+.3f rad", m.hist.last.State.EPsi))
	row("Steering", fmt.Sprintf("%+.3f", m.hist.last.Command.Steering))
	row("Throttle", fmt.Sprintf("%+.3f", m.hist.last.Command.Throttle))
	row("Solve", fmt.Sprintf("%.1f ms", float64(m.hist.last.SolveTime.Microseconds())/1000))
	row("Skipped", fmt.Sprintf("%d", m.hist.skipped))
	row("On track", fmt.Sprintf("%.0f%%", 100*m.onTrack.Value()))

	tr := m.sim.Track()
	_, station, _ := tr.Project(pose.X, pose.Y)
	s.WriteString(st.label.Render("Progress") + st.ProgressBar(station/tr.Length(), 20) + "\n")
	s.WriteString(st.label.Render("Solve hist") + st.Sparkline(m.hist.solveMs, m.period.Seconds()*1000, 30) + "\n")

	if len(m.hist.cteHistory) > 1 {
		chart := asciigraph.Plot(m.hist.cteHistory, asciigraph.Height(5), asciigraph.Width(26), asciigraph.Caption("track error (m)"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	s.WriteString(st.help.Render("SP:Pause N:Step R:Reset F:Follow\nT:Theme ?:Help Q:Quit"))
	main := lipgloss.JoinHorizontal(lipgloss.Top, st.canvas.Render(m.canvas.String()), st.stats.Render(s.String()))
	if m.showHelp {
		return st.help.Render(helpText) + "\n\n" + main
	}
	return main
}

const helpText = `Space  pause or resume
N      single tick while paused
R      restart from the start pose
F      follow the car / whole track
T      cycle themes
Q      quit`

// Run shows the dashboard until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
