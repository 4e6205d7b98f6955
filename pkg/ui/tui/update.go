package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Message types for the TUI

// LogMsg carries one event line
type LogMsg struct {
	Text string
}

// StageMsg is sent when the run enters a stage
type StageMsg struct {
	Name string
}

// ProgressMsg carries the overall percentage
type ProgressMsg struct {
	Percent int
}

// SummaryMsg carries the statistics block
type SummaryMsg struct {
	Text string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, msg.Width/2-20)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		if bar, ok := model.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case LogMsg:
		m.AddEvent(msg.Text)
		return m, nil

	case StageMsg:
		m.SetStage(msg.Name)
		return m, nil

	case ProgressMsg:
		m.SetProgress(msg.Percent)
		return m, m.bar.SetPercent(float64(m.percent) / 100)

	case SummaryMsg:
		m.SetSummary(msg.Text)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
			m.onQuit = nil
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
