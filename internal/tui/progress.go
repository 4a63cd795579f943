package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/stemsim/internal/experiment"
)

var ErrInterrupted = errors.New("tui: run interrupted")

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const barWidth = 40

type ProgressMsg struct{ Done, Total int }

type MetricsMsg map[string]float64

type DoneMsg struct{ Result *experiment.Result }

type ErrMsg struct{ Err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model shows the progress and live metrics of one experiment run.
type Model struct {
	name    string
	source  string
	done    int
	total   int
	metrics map[string]float64
	start   time.Time
	elapsed time.Duration
	result  *experiment.Result
	err     error
	quit    bool
	width   int
	cancel  context.CancelFunc
}

// NewModel returns a model for the run called name. cancel is invoked when
// the user quits before the run finishes and may be nil.
func NewModel(name, source string, cancel context.CancelFunc) Model {
	return Model{
		name:    name,
		source:  source,
		metrics: map[string]float64{},
		start:   time.Now(),
		width:   80,
		cancel:  cancel,
	}
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) finished() bool { return m.result != nil || m.err != nil || m.quit }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total
	case MetricsMsg:
		for k, v := range msg {
			m.metrics[k] = v
		}
	case DoneMsg:
		m.result = msg.Result
		m.elapsed = time.Since(m.start)
		if msg.Result != nil {
			for k, v := range msg.Result.Metrics {
				m.metrics[k] = v
			}
			m.done = m.total
		}
		return m, tea.Quit
	case ErrMsg:
		m.err = msg.Err
		m.elapsed = time.Since(m.start)
		return m, tea.Quit
	case tickMsg:
		if m.finished() {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	status := green.Render("●") + " " + green.Render("running")
	switch {
	case m.err != nil:
		status = red.Render("✗") + " " + red.Render("failed")
	case m.result != nil:
		status = cyan.Render("✓") + " " + cyan.Render("done")
	case m.quit:
		status = yellow.Render("○") + " " + yellow.Render("interrupted")
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n", cyan.Render(m.name), dim.Render(m.source), status))
	b.WriteString(dimmer.Render("  "+strings.Repeat("─", min(barWidth+16, max(m.width-4, 10)))) + "\n\n")

	b.WriteString("  " + bar(m.done, m.total, barWidth, true) + "  " + white.Render(percent(m.done, m.total)))
	b.WriteString(dim.Render(fmt.Sprintf("  %d/%d  %s", m.done, m.total, m.elapsed.Round(time.Millisecond))) + "\n\n")

	names := make([]string, 0, len(m.metrics))
	for k := range m.metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		b.WriteString("  " + dim.Render(fmt.Sprintf("%-16s", k)) + white.Render(fmt.Sprintf("%.6g", m.metrics[k])) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n  " + red.Render(m.err.Error()) + "\n")
	}
	if !m.finished() {
		b.WriteString("\n" + dim.Render("  q quit") + "\n")
	}
	return b.String()
}

// Result returns what the run produced once the program has exited.
func (m Model) Result() (*experiment.Result, error) {
	switch {
	case m.err != nil:
		return nil, m.err
	case m.result != nil:
		return m.result, nil
	}
	return nil, ErrInterrupted
}

func percent(done, total int) string {
	if total <= 0 {
		return "  0%"
	}
	return fmt.Sprintf("%3d%%", done*100/total)
}

func bar(done, total, width int, color bool) string {
	filled := 0
	if total > 0 {
		filled = min(done*width/total, width)
	}
	full, empty := strings.Repeat("█", filled), strings.Repeat("░", width-filled)
	if color {
		return cyan.Render(full) + dimmer.Render(empty)
	}
	return full + empty
}

// Run executes a set up experiment behind an inline progress view.
func Run(ctx context.Context, e *experiment.Experiment, name, source string) (*experiment.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(name, source, cancel), tea.WithContext(ctx))
	e.OnProgress(func(done, total int) {
		p.Send(ProgressMsg{Done: done, Total: total})
		p.Send(MetricsMsg(e.MetricValues()))
	})
	go func() {
		res, err := e.Run(ctx)
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{Result: res})
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok {
		return nil, ErrInterrupted
	}
	return m.Result()
}
