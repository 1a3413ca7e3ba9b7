// Package tui runs consolectl's slow API calls behind a spinner.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vpnconsole/vpnconsole/internal/ui"
)

// Step is one call shown as a spinner line. Run may call note to replace the
// line's text; the final text is what gets the checkmark.
type Step struct {
	Title string
	Run   func(ctx context.Context, note func(string)) error
}

type stepDoneMsg struct {
	index int
	err   error
}

type noteMsg struct{ text string }

type stepModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	steps   []Step
	current int
	done    []string
	line    string
	spinner spinner.Model
	err     error
	send    func(tea.Msg)
}

func (m *stepModel) Init() tea.Cmd {
	m.line = m.steps[0].Title
	return tea.Batch(m.spinner.Tick, m.run(0))
}

func (m *stepModel) run(idx int) tea.Cmd {
	step := m.steps[idx]
	return func() tea.Msg {
		note := func(s string) {
			if m.send != nil {
				m.send(noteMsg{text: s})
			}
		}
		return stepDoneMsg{index: idx, err: step.Run(m.ctx, note)}
	}
}

func (m *stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.err = context.Canceled
			return m, tea.Quit
		}

	case noteMsg:
		m.line = msg.text
		return m, nil

	case stepDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.done = append(m.done, m.line)
		m.current++
		if m.current >= len(m.steps) {
			return m, tea.Quit
		}
		m.line = m.steps[m.current].Title
		return m, m.run(m.current)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *stepModel) View() string {
	var b strings.Builder
	for _, line := range m.done {
		b.WriteString(ui.StepOK(line) + "\n")
	}
	switch {
	case m.err != nil:
		b.WriteString(ui.StepFail(m.line) + "\n")
	case m.current < len(m.steps):
		b.WriteString(m.spinner.View() + " " + m.line + "\n")
	}
	return b.String()
}

// RunSteps executes steps in order, stopping at the first error. On a
// terminal each step animates; otherwise lines are printed as steps finish.
func RunSteps(ctx context.Context, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return RunPlain(ctx, os.Stdout, steps)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.Yellow)

	m := &stepModel{ctx: ctx, cancel: cancel, steps: steps, spinner: s}
	p := tea.NewProgram(m)
	m.send = p.Send

	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	if r, ok := result.(*stepModel); ok && r.err != nil {
		return r.err
	}
	return nil
}

// RunPlain executes steps without animation, writing one line per step to w.
func RunPlain(ctx context.Context, w io.Writer, steps []Step) error {
	for _, step := range steps {
		line := step.Title
		err := step.Run(ctx, func(s string) { line = s })
		if err != nil {
			_, _ = fmt.Fprintln(w, ui.StepFail(line))
			return err
		}
		_, _ = fmt.Fprintln(w, ui.StepOK(line))
	}
	return nil
}
