package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"xmediagrab/pkg/discovery"
)

// ConsoleSink renders run events as colored lines above a single
// progress bar. It is safe for concurrent use.
type ConsoleSink struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *progressbar.ProgressBar
	quiet   bool
	verbose bool
	stage   string
	started time.Time
}

// NewConsoleSink creates a sink writing to out. Quiet drops log lines
// and the bar but keeps the summary; verbose also prints skipped files.
func NewConsoleSink(out io.Writer, quiet, verbose bool) *ConsoleSink {
	return &ConsoleSink{
		out:     out,
		bar:     newProgressBar(out),
		quiet:   quiet,
		verbose: verbose,
		started: time.Now(),
	}
}

func newProgressBar(out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(colorEnabled),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "━",
			SaucerHead:    "━",
			SaucerPadding: "─",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// OnLog prints one event line
func (c *ConsoleSink) OnLog(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		return
	}
	line := styleLine(text)
	if line == "" && !c.verbose {
		return
	}
	if line == "" {
		line = Dim(text)
	}
	_ = c.bar.Clear()
	fmt.Fprintf(c.out, "%s %s\n", Dim(time.Now().Format("15:04:05")), line)
	_ = c.bar.RenderBlank()
}

// OnStage prints a stage header and relabels the bar
func (c *ConsoleSink) OnStage(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stage = name
	if c.quiet {
		return
	}
	_ = c.bar.Clear()
	fmt.Fprintf(c.out, "\n%s\n", Magenta("["+strings.ToUpper(name)+"]"))
	c.bar.Describe(name)
	if name == discovery.StageDone {
		_ = c.bar.Finish()
		fmt.Fprintln(c.out)
		return
	}
	_ = c.bar.RenderBlank()
}

// OnProgress moves the bar
func (c *ConsoleSink) OnProgress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		return
	}
	_ = c.bar.Set(percent)
}

// OnStatsSummary prints the statistics block
func (c *ConsoleSink) OnStatsSummary(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.bar.Clear()
	fmt.Fprintf(c.out, "\n%s\n", Cyan(text))
	fmt.Fprintf(c.out, "%s %s\n", Dim("elapsed"), formatDuration(time.Since(c.started)))
}

// styleLine colors known event lines. Existing-file skips return "" so
// they only show in verbose mode.
func styleLine(text string) string {
	switch {
	case strings.HasPrefix(text, "Skipped ") && strings.HasSuffix(text, "(exists)"):
		return ""
	case strings.HasPrefix(text, "Failed"), strings.HasPrefix(text, "Cannot"):
		return Red("✗ " + text)
	case strings.HasPrefix(text, "Saved "):
		return Green("✓ " + text)
	case strings.HasPrefix(text, "Found "):
		return Yellow("+ " + text)
	default:
		return text
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ discovery.EventSink = (*ConsoleSink)(nil)
