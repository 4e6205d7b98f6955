package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"xmediagrab/pkg/discovery"
)

func withOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevColor := Output, colorEnabled
	Output = &buf
	SetColor(false)
	t.Cleanup(func() {
		Output = prevOut
		SetColor(prevColor)
	})
	return &buf
}

func TestConsoleSink(t *testing.T) {
	withOutput(t)
	var out bytes.Buffer
	sink := NewConsoleSink(&out, false, false)

	sink.OnStage(discovery.StageDiscover)
	sink.OnLog("Found 2 image(s), 2 total")
	sink.OnProgress(45)
	sink.OnLog("Skipped image_1.jpg (exists)")
	sink.OnLog("Failed image 2: boom")
	sink.OnStage(discovery.StageDone)
	sink.OnStatsSummary("Image URLs found: 2")

	text := out.String()
	assert.Contains(t, text, "[DISCOVER]")
	assert.Contains(t, text, "+ Found 2 image(s), 2 total")
	assert.Contains(t, text, "✗ Failed image 2: boom")
	assert.NotContains(t, text, "image_1.jpg")
	assert.Contains(t, text, "Image URLs found: 2")
}

func TestConsoleSinkVerboseShowsSkips(t *testing.T) {
	withOutput(t)
	var out bytes.Buffer
	sink := NewConsoleSink(&out, false, true)

	sink.OnLog("Skipped image_1.jpg (exists)")
	assert.Contains(t, out.String(), "Skipped image_1.jpg (exists)")
}

func TestConsoleSinkQuietKeepsSummary(t *testing.T) {
	withOutput(t)
	var out bytes.Buffer
	sink := NewConsoleSink(&out, true, false)

	sink.OnStage(discovery.StageDownload)
	sink.OnLog("Saved image_1.jpg")
	sink.OnProgress(95)
	sink.OnStatsSummary("summary block")

	text := out.String()
	assert.NotContains(t, text, "DOWNLOAD")
	assert.NotContains(t, text, "image_1.jpg")
	assert.Contains(t, text, "summary block")
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(title, message string) error {
	f.sent = append(f.sent, title+"|"+message)
	return f.err
}

func TestNotifier(t *testing.T) {
	buf := withOutput(t)
	sender := &fakeSender{err: errors.New("no daemon")}
	n := NewNotifierWithSender(sender, true, false)

	n.SendSuccess("Done", "12 images")
	n.SendError("Failed", "browser crashed")
	n.SendNotification("Note", "hello")

	assert.Equal(t, []string{"Done|12 images", "Note|hello"}, sender.sent)
	assert.Contains(t, buf.String(), "Failed: browser crashed")
}

func TestDisabledNotifierOnlyPrints(t *testing.T) {
	buf := withOutput(t)
	n := NewNotifier(false, true, true)
	n.SendSuccess("Done", "3 images")
	assert.Contains(t, buf.String(), "Done: 3 images")
}

func TestColorToggle(t *testing.T) {
	withOutput(t)
	assert.Equal(t, "plain", Red("plain"))
	SetColor(true)
	assert.Equal(t, "\033[31mplain\033[0m", Red("plain"))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
	}
}

func TestAppleScriptQuoting(t *testing.T) {
	assert.Equal(t, `"say \"hi\""`, appleScriptString(`say "hi"`))
	assert.Equal(t, "a &amp; &lt;b&gt;", xmlEscape("a & <b>"))
}
