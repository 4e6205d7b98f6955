package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xmediagrab/pkg/discovery"
)

// stageOrder is the order stages are shown in the status panel
var stageOrder = []string{
	discovery.StageLogin,
	discovery.StageDiscover,
	discovery.StageDownload,
	discovery.StageDone,
}

// Model is the dashboard state. It is only touched from the bubbletea
// program goroutine; producers talk to it through messages.
type Model struct {
	// UI components
	spinner spinner.Model
	bar     progress.Model

	// Run state
	user       string
	stage      string
	stageStart map[string]time.Time
	percent    int
	found      int
	saved      int
	failed     int
	summary    string
	startTime  time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	onQuit func()
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a dashboard for one user's run
func NewModel(user string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	bar := progress.New(progress.WithGradient(string(neonMagenta), string(neonCyan)))
	bar.Width = 40

	return Model{
		spinner:        s,
		bar:            bar,
		user:           user,
		stageStart:     make(map[string]time.Time),
		startTime:      time.Now(),
		maxLogMessages: 200,
	}
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// SetStage records entering a stage
func (m *Model) SetStage(name string) {
	m.stage = name
	if _, ok := m.stageStart[name]; !ok {
		m.stageStart[name] = time.Now()
	}
	m.AddLogMessage("STAGE", "Entering "+name)
}

// SetProgress clamps and records the overall percentage
func (m *Model) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	m.percent = percent
}

// AddEvent classifies an event line and tallies it
func (m *Model) AddEvent(text string) {
	level := "INFO"
	switch {
	case strings.HasPrefix(text, "Saved "):
		level = "SUCCESS"
		m.saved++
	case strings.HasPrefix(text, "Failed"), strings.HasPrefix(text, "Cannot"):
		level = "ERROR"
		if strings.HasPrefix(text, "Failed image") {
			m.failed++
		}
	case strings.HasPrefix(text, "Skipped "), strings.HasPrefix(text, "No new images"):
		level = "WARN"
	case strings.HasPrefix(text, "Found "):
		level = "FOUND"
		var added, total int
		if n, _ := fmt.Sscanf(text, "Found %d image(s), %d total", &added, &total); n == 2 {
			m.found = total
		}
	}
	m.AddLogMessage(level, text)
}

// SetSummary stores the end-of-run statistics block
func (m *Model) SetSummary(text string) {
	m.summary = text
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "FOUND":
		color = neonYellow
	case "STAGE":
		color = neonMagenta
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Stage returns the current stage name
func (m *Model) Stage() string { return m.stage }

// Percent returns the overall progress
func (m *Model) Percent() int { return m.percent }

// Counts returns the URLs found, files saved and files failed so far
func (m *Model) Counts() (found, saved, failed int) {
	return m.found, m.saved, m.failed
}

// Logs returns the retained log messages
func (m *Model) Logs() []LogMessage {
	return append([]LogMessage(nil), m.logMessages...)
}

// stageState reports whether a stage is finished, current or pending
func (m *Model) stageState(name string) int {
	cur := -1
	idx := -1
	for i, s := range stageOrder {
		if s == m.stage {
			cur = i
		}
		if s == name {
			idx = i
		}
	}
	switch {
	case idx < cur || (idx == cur && m.stage == discovery.StageDone):
		return stageFinished
	case idx == cur:
		return stageCurrent
	default:
		return stagePending
	}
}

const (
	stagePending = iota
	stageCurrent
	stageFinished
)
