// Package tui renders live generation progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sentientsergio/synthgen/internal/driver"
)

type tableState int

const (
	statePending tableState = iota
	stateRunning
	stateDone
	stateWarned
)

type tableRow struct {
	name      string
	state     tableState
	produced  int
	requested int
}

// DoneMsg signals that the run has finished; Err is nil on success.
type DoneMsg struct {
	Err error
}

// Model is the bubbletea model for a generation run. Events arrive via
// Program.Send from the driver's progress callback.
type Model struct {
	order    []string
	rows     map[string]*tableRow
	warnings []string
	spinner  spinner.Model
	done     bool
	err      error
	quit     bool
	width    int
}

// NewModel creates a progress model for the given table order.
func NewModel(order []string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	rows := make(map[string]*tableRow, len(order))
	for _, name := range order {
		rows[name] = &tableRow{name: name}
	}
	return Model{
		order:   order,
		rows:    rows,
		spinner: s,
		width:   100,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}
		return m, nil

	case driver.Event:
		if r, ok := m.rows[msg.Table]; ok {
			switch msg.Kind {
			case driver.EventTableStarted:
				r.state = stateRunning
				r.requested = msg.Requested
			case driver.EventTableCompleted:
				r.state = stateDone
				r.produced = msg.Produced
				r.requested = msg.Requested
			case driver.EventWarning:
				r.state = stateWarned
				r.produced = msg.Produced
			}
		}
		if msg.Kind == driver.EventWarning && msg.Message != "" {
			m.warnings = append(m.warnings, msg.Message)
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Generating synthetic data"))
	b.WriteString("\n\n")

	for _, name := range m.order {
		r := m.rows[name]
		icon := dimStyle.Render("..")
		switch r.state {
		case stateRunning:
			icon = m.spinner.View()
		case stateDone:
			icon = successStyle.Render("OK")
		case stateWarned:
			icon = warnStyle.Render("!!")
		}
		line := fmt.Sprintf("  %s %-30s", icon, r.name)
		if r.state == stateDone || r.state == stateWarned {
			line += fmt.Sprintf(" %d/%d rows", r.produced, r.requested)
		}
		b.WriteString(line + "\n")
	}

	if len(m.warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("  Warnings:"))
		b.WriteString("\n")
		for _, w := range m.warnings {
			b.WriteString("  - " + w + "\n")
		}
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("  Run failed: %v", m.err)))
		} else {
			b.WriteString(successStyle.Render("  Run completed"))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  q: abort run"))
		b.WriteString("\n")
	}

	return b.String()
}

// Quit reports whether the user aborted the run.
func (m Model) Quit() bool { return m.quit }

// Err returns the run error, if any.
func (m Model) Err() error { return m.err }

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)
