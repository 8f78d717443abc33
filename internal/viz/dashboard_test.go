package viz

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/control"
	"github.com/san-kum/mpcdrive/internal/integrators"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/track"
)

func newTestModel(t *testing.T, duration float64) Model {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sim.Duration = duration
	simCfg := sim.ConfigFrom(cfg)
	ctrl := control.NewPID(cfg, time.Duration(simCfg.Period*float64(time.Second)))

	s, err := sim.New(simCfg, track.Oval(120, 60, 180), ctrl, integrators.NewRK4(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewModel(context.Background(), s, "oval / pid", time.Millisecond, "retro")
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelTicks(t *testing.T) {
	m := newTestModel(t, 10)
	if m.Init() == nil {
		t.Fatal("expected a tick command")
	}

	for i := 0; i < 5; i++ {
		var cmd tea.Cmd
		var next tea.Model
		next, cmd = m.Update(TickMsg(time.Now()))
		m = next.(Model)
		if cmd == nil {
			t.Fatal("expected the next tick to be scheduled")
		}
	}

	if m.sim.Time() < 0.49 {
		t.Errorf("expected 5 ticks of 0.1s, got t=%f", m.sim.Time())
	}
	if len(m.hist.trail) != 5 || len(m.hist.cteHistory) != 5 {
		t.Errorf("expected 5 history entries, got %d and %d", len(m.hist.trail), len(m.hist.cteHistory))
	}
}

func TestModelPauseAndStep(t *testing.T) {
	m := newTestModel(t, 10)
	m = update(t, m, key(" "))
	if m.running {
		t.Fatal("expected paused")
	}

	m = update(t, m, TickMsg(time.Now()))
	if m.sim.Time() != 0 {
		t.Errorf("paused model should not advance, got t=%f", m.sim.Time())
	}

	m = update(t, m, key("n"))
	if len(m.hist.trail) != 1 {
		t.Errorf("expected one manual step, got %d", len(m.hist.trail))
	}
}

func TestModelReset(t *testing.T) {
	m := newTestModel(t, 10)
	m = update(t, m, TickMsg(time.Now()))
	m = update(t, m, TickMsg(time.Now()))
	m = update(t, m, key("r"))

	if m.sim.Time() != 0 || len(m.hist.trail) != 0 || !m.running {
		t.Errorf("expected a fresh run, got t=%f trail=%d running=%v", m.sim.Time(), len(m.hist.trail), m.running)
	}
}

func TestModelStopsWhenFinished(t *testing.T) {
	m := newTestModel(t, 0.3)
	for i := 0; i < 6; i++ {
		m = update(t, m, TickMsg(time.Now()))
	}
	if m.running {
		t.Error("expected the dashboard to stop at the end of the run")
	}
	if !strings.Contains(m.View(), "FINISHED") {
		t.Error("expected a finished status")
	}
}

func TestModelKeys(t *testing.T) {
	m := newTestModel(t, 10)
	m = update(t, m, key("t"))
	if m.theme.Name != "minimal" {
		t.Errorf("expected theme after retro, got %s", m.theme.Name)
	}
	m = update(t, m, key("f"))
	if !m.follow {
		t.Error("expected follow mode")
	}

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestView(t *testing.T) {
	m := newTestModel(t, 10)
	for i := 0; i < 3; i++ {
		m = update(t, m, TickMsg(time.Now()))
	}
	view := m.View()
	for _, want := range []string{"OVAL / PID", "RUNNING", "Speed", "Track err", "track error (m)"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}

	m.follow = true
	if !strings.Contains(m.View(), "Speed") {
		t.Error("follow view missing stats")
	}
}
