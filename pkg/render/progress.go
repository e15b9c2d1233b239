package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkoosis/megaqa/pkg/pipeline"
	"github.com/dkoosis/megaqa/pkg/qa"
	"github.com/dkoosis/megaqa/pkg/runner"
)

// Progress receives pipeline callbacks while a run executes.
type Progress interface {
	OnState(t pipeline.Transition)
	OnSuite(index int, o runner.Outcome)
	// Stop flushes the display. It must be called once the run returns.
	Stop()
}

// NewProgress returns a live spinner view when live is true and a
// line-per-event log otherwise.
func NewProgress(w io.Writer, names []string, theme Theme, live bool) Progress {
	if !live {
		return &lineProgress{w: w, total: len(names)}
	}
	lp := &liveProgress{done: make(chan struct{})}
	lp.program = tea.NewProgram(newProgressModel(names, theme),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	go func() {
		defer close(lp.done)
		_, _ = lp.program.Run()
	}()
	return lp
}

type suiteState int

const (
	suitePending suiteState = iota
	suiteRunning
	suiteFinished
)

type suiteRow struct {
	name   string
	state  suiteState
	result qa.SuiteResult
}

type (
	stateMsg pipeline.Transition
	suiteMsg struct {
		index   int
		outcome runner.Outcome
	}
	stopMsg struct{}
)

type progressModel struct {
	theme   Theme
	rows    []suiteRow
	phase   pipeline.State
	spinner spinner.Model
	stopped bool
}

func newProgressModel(names []string, theme Theme) progressModel {
	rows := make([]suiteRow, len(names))
	for i, n := range names {
		rows[i] = suiteRow{name: n}
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Primary))
	return progressModel{theme: theme, rows: rows, phase: pipeline.StateIdle, spinner: sp}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.phase = msg.To
		if msg.To == pipeline.StateRunning && msg.Suite >= 0 && msg.Suite < len(m.rows) {
			m.rows[msg.Suite].state = suiteRunning
		}
	case suiteMsg:
		if msg.index >= 0 && msg.index < len(m.rows) {
			m.rows[msg.index].state = suiteFinished
			m.rows[msg.index].result = msg.outcome.Result
		}
	case stopMsg:
		m.stopped = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	width := 0
	for _, r := range m.rows {
		width = max(width, len(r.name))
	}
	var sb strings.Builder
	for _, r := range m.rows {
		sb.WriteString("  ")
		switch r.state {
		case suitePending:
			sb.WriteString(m.theme.Muted.Render(m.theme.Icons.Pending + " " + fit(r.name, width)))
		case suiteRunning:
			sb.WriteString(m.spinner.View() + " " + fit(r.name, width))
		case suiteFinished:
			icon, style := m.theme.suiteIcon(r.result.Status)
			sb.WriteString(style.Render(icon) + " " + fit(r.name, width))
			sb.WriteString(m.theme.Muted.Render("  " + formatDuration(r.result.DurationMs)))
		}
		sb.WriteString("\n")
	}
	if !m.stopped && m.phase != pipeline.StateRunning && m.phase != pipeline.StateIdle {
		sb.WriteString(m.spinner.View() + " " + m.theme.Muted.Render(string(m.phase)+"…") + "\n")
	}
	return sb.String()
}

type liveProgress struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

func (p *liveProgress) OnState(t pipeline.Transition) { p.program.Send(stateMsg(t)) }

func (p *liveProgress) OnSuite(index int, o runner.Outcome) {
	p.program.Send(suiteMsg{index: index, outcome: o})
}

func (p *liveProgress) Stop() {
	p.once.Do(func() {
		p.program.Send(stopMsg{})
		<-p.done
	})
}

// lineProgress prints one line per suite for logs and CI.
type lineProgress struct {
	w     io.Writer
	total int
}

func (p *lineProgress) OnState(t pipeline.Transition) {
	if t.To == pipeline.StateRunning {
		fmt.Fprintf(p.w, "[%d/%d] %s ...\n", t.Suite+1, p.total, t.Name)
	}
}

func (p *lineProgress) OnSuite(index int, o runner.Outcome) {
	r := o.Result
	status := strings.ToUpper(string(r.Status))
	if r.Status == qa.SuiteError && r.Error != "" {
		status += ": " + firstLine(r.Error)
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", index+1, p.total, r.Name, status, formatDuration(r.DurationMs))
}

func (p *lineProgress) Stop() {}
