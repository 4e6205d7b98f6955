package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"xmediagrab/pkg/discovery"
)

// TUI is a full-screen dashboard that doubles as an EventSink
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for user. onQuit runs once when the user
// presses q, typically a context cancel.
func NewTUI(user string, onQuit func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(user)
	model.onQuit = onQuit
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Start runs the program until Stop or the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) OnLog(text string)          { t.Send(LogMsg{Text: text}) }
func (t *TUI) OnStage(name string)        { t.Send(StageMsg{Name: name}) }
func (t *TUI) OnProgress(percent int)     { t.Send(ProgressMsg{Percent: percent}) }
func (t *TUI) OnStatsSummary(text string) { t.Send(SummaryMsg{Text: text}) }

var _ discovery.EventSink = (*TUI)(nil)
