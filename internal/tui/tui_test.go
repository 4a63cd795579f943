package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/stemsim/internal/experiment"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func TestModelProgress(t *testing.T) {
	m := NewModel("demo", "probe", nil)
	m, _ = update(t, m, ProgressMsg{Done: 3, Total: 6})
	m, _ = update(t, m, MetricsMsg{"intensity": 0.5})

	view := m.View()
	for _, want := range []string{"demo", "probe", "50%", "3/6", "intensity", "0.5", "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelDone(t *testing.T) {
	m := NewModel("demo", "plane_wave", nil)
	m, _ = update(t, m, ProgressMsg{Done: 1, Total: 4})
	res := &experiment.Result{Metrics: map[string]float64{"stability": 0}}
	m, cmd := update(t, m, DoneMsg{Result: res})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done should quit the program")
	}
	got, err := m.Result()
	if err != nil || got != res {
		t.Fatalf("Result() = %v, %v", got, err)
	}
	if !strings.Contains(m.View(), "100%") {
		t.Errorf("finished view should be complete:\n%s", m.View())
	}
}

func TestModelError(t *testing.T) {
	boom := errors.New("boom")
	m := NewModel("demo", "probe", nil)
	m, _ = update(t, m, ErrMsg{Err: boom})
	if _, err := m.Result(); !errors.Is(err, boom) {
		t.Errorf("Result() error = %v", err)
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("view should show the error")
	}
}

func TestModelQuitCancels(t *testing.T) {
	cancelled := false
	m := NewModel("demo", "probe", func() { cancelled = true })
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quit should cancel the run")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, err := m.Result(); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Result() error = %v", err)
	}
}

func TestTickStopsWhenFinished(t *testing.T) {
	m := NewModel("demo", "probe", nil)
	if _, cmd := update(t, m, tickMsg{}); cmd == nil {
		t.Error("running model should keep ticking")
	}
	m, _ = update(t, m, ErrMsg{Err: errors.New("x")})
	if _, cmd := update(t, m, tickMsg{}); cmd != nil {
		t.Error("finished model should stop ticking")
	}
}

func TestBar(t *testing.T) {
	if got := bar(5, 10, 10, false); got != "█████░░░░░" {
		t.Errorf("bar = %q", got)
	}
	if got := bar(3, 0, 4, false); got != "░░░░" {
		t.Errorf("bar with no total = %q", got)
	}
	if got := percent(1, 3); got != " 33%" {
		t.Errorf("percent = %q", got)
	}
}

func TestLiveRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "scan", 1)
	r.OnProgress(1, 4)
	r.OnProgress(2, 4)
	r.OnProgress(4, 4)
	r.Close()

	out := buf.String()
	if strings.Contains(out, "2/4") {
		t.Error("second frame should be throttled")
	}
	for _, want := range []string{hideCursor, "1/4", "4/4", "100%", showCursor} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
