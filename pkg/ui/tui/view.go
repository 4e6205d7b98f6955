package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// Build the UI layout
	var sections []string

	// Logo
	sections = append(sections, m.renderLogo())

	// Main content area with two columns
	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftColumn(),
		"  ",
		m.renderLogsPanel((m.width-4)/2),
	)
	sections = append(sections, mainContent)

	// Help
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop"))
	}

	// Join all sections vertically
	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo() string {
	logo := `
▀▄▀ █▀▄▀█ █▀▀ █▀▄ █ ▄▀█ █▀▀ █▀█ ▄▀█ █▄▄
█ █ █ ▀ █ ██▄ █▄▀ █ █▀█ █▄█ █▀▄ █▀█ █▄█`

	return logoStyle.Width(m.width).Render(logo)
}

func (m *Model) renderLeftColumn() string {
	width := (m.width - 4) / 2

	sections := []string{
		m.renderStatusPanel(width),
		m.renderStagesPanel(width),
	}
	if m.summary != "" {
		sections = append(sections, m.renderSummaryPanel(width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderStatusPanel(width int) string {
	title := titleStyle.Render(" RUN STATUS ")

	stage := m.stage
	if stage == "" {
		stage = "starting"
	}

	rows := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Target:"), statsValueStyle.Render("@"+m.user)),
		fmt.Sprintf("%s %s %s", statsLabelStyle.Render("Stage:"), m.spinner.View(), statsValueStyle.Render(stage)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(time.Since(m.startTime)))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Images found:"), statsValueStyle.Render(fmt.Sprint(m.found))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Saved:"), successStyle.Render(fmt.Sprint(m.saved))),
	}
	if m.failed > 0 {
		rows = append(rows, fmt.Sprintf("%s %s", statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprint(m.failed))))
	}
	// Discovery or download progress
	rows = append(rows, "",
		m.bar.View()+" "+GetProgressStyle(float64(m.percent)).Render(fmt.Sprintf("%3d%%", m.percent)))

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m *Model) renderStagesPanel(width int) string {
	title := titleStyle.Render(" STAGES ")

	var rows []string
	for _, name := range stageOrder {
		switch m.stageState(name) {
		case stageFinished:
			rows = append(rows, stageDoneStyle.Render("✓ "+name))
		case stageCurrent:
			rows = append(rows, stageCurrentStyle.Render("▶ "+name))
		default:
			rows = append(rows, stagePendingStyle.Render("· "+name))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m *Model) renderSummaryPanel(width int) string {
	title := titleStyle.Render(" SUMMARY ")
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, logMessageStyle.Render(m.summary)),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" EVENTS ")

	// Calculate height for logs panel to fill remaining space
	logsHeight := m.height - 10
	if logsHeight < 5 {
		logsHeight = 5
	}

	// Get recent logs
	start := len(m.logMessages) - (logsHeight - 4)
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		// Truncate message if too long
		msg := log.Message
		if maxLen := width - 25; maxLen > 3 && len(msg) > maxLen {
			msg = msg[:maxLen-3] + "..."
		}

		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(msg)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No events yet...")
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the run and quit
    ctrl+l   - Clear the event list
    ?        - Toggle this help

  Event colors:
    ` + successStyle.Render("Green") + `    - Image saved
    ` + warningStyle.Render("Orange") + `   - Skipped or nothing new
    ` + errorStyle.Render("Red") + `      - Failure
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
