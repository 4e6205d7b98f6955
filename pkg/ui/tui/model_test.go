package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/pkg/discovery"
)

func TestModelEvents(t *testing.T) {
	m := NewModel("someone")

	m.Update(StageMsg{Name: discovery.StageDiscover})
	m.Update(LogMsg{Text: "Found 2 image(s), 2 total"})
	m.Update(LogMsg{Text: "Found 1 image(s), 3 total"})
	m.Update(ProgressMsg{Percent: 45})
	m.Update(StageMsg{Name: discovery.StageDownload})
	m.Update(LogMsg{Text: "Saved image_1.jpg"})
	m.Update(LogMsg{Text: "Failed image 2: status 404"})
	m.Update(LogMsg{Text: "Skipped image_3.jpg (exists)"})

	assert.Equal(t, discovery.StageDownload, m.Stage())
	assert.Equal(t, 45, m.Percent())
	found, saved, failed := m.Counts()
	assert.Equal(t, 3, found)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, failed)

	var levels []string
	for _, l := range m.Logs() {
		levels = append(levels, l.Level)
	}
	assert.Equal(t, []string{"STAGE", "FOUND", "FOUND", "STAGE", "SUCCESS", "ERROR", "WARN"}, levels)

	assert.Equal(t, stageFinished, m.stageState(discovery.StageLogin))
	assert.Equal(t, stageCurrent, m.stageState(discovery.StageDownload))
	assert.Equal(t, stagePending, m.stageState(discovery.StageDone))
}

func TestProgressIsClamped(t *testing.T) {
	m := NewModel("u")
	m.SetProgress(140)
	assert.Equal(t, 100, m.Percent())
	m.SetProgress(-3)
	assert.Equal(t, 0, m.Percent())
}

func TestLogsAreCapped(t *testing.T) {
	m := NewModel("u")
	m.maxLogMessages = 5
	for i := 0; i < 12; i++ {
		m.AddLogMessage("INFO", "line")
	}
	assert.Len(t, m.Logs(), 5)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.Logs())
}

func TestQuitKeyCancelsOnce(t *testing.T) {
	calls := 0
	m := NewModel("u")
	m.onQuit = func() { calls++ }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, calls)
}

func TestView(t *testing.T) {
	m := NewModel("someone")
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m.Update(StageMsg{Name: discovery.StageDone})
	m.Update(SummaryMsg{Text: "Image URLs found: 3"})

	view := m.View()
	assert.Contains(t, view, "@someone")
	assert.Contains(t, view, "Image URLs found: 3")
	assert.Contains(t, view, "✓ done")
}
