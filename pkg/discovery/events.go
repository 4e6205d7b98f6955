package discovery

import (
	"sync"

	"xmediagrab/pkg/logger"
)

// Stage names reported through EventSink.OnStage
const (
	StageLogin    = "login"
	StageDiscover = "discover"
	StageDownload = "download"
	StageDone     = "done"
)

// discovery fills 0..discoverShare of the progress bar, download the rest
const discoverShare = 90

// EventSink receives one-way progress notifications. Calls are made
// synchronously and in order from the goroutine running the scrape.
type EventSink interface {
	OnLog(text string)
	OnStage(name string)
	OnProgress(percent int)
	OnStatsSummary(text string)
}

// DiscoveryPercent maps iteration i of n onto 0..90
func DiscoveryPercent(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i > n {
		i = n
	}
	return i * discoverShare / n
}

// DownloadPercent maps done of total files onto 90..100
func DownloadPercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	if done > total {
		done = total
	}
	return discoverShare + done*(100-discoverShare)/total
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) OnLog(string)          {}
func (NopSink) OnStage(string)        {}
func (NopSink) OnProgress(int)        {}
func (NopSink) OnStatsSummary(string) {}

// LoggerSink forwards events to a structured logger
type LoggerSink struct {
	Log logger.Logger
}

func (s LoggerSink) OnLog(text string) { s.Log.Info(text) }

func (s LoggerSink) OnStage(name string) {
	s.Log.WithField("stage", name).Info("Stage changed")
}

func (s LoggerSink) OnProgress(percent int) {
	s.Log.WithField("percent", percent).Debug("Progress")
}

func (s LoggerSink) OnStatsSummary(text string) {
	s.Log.WithField("summary", text).Info("Run statistics")
}

// MultiSink fans every event out to each sink in order
type MultiSink []EventSink

func (m MultiSink) OnLog(text string) {
	for _, s := range m {
		s.OnLog(text)
	}
}

func (m MultiSink) OnStage(name string) {
	for _, s := range m {
		s.OnStage(name)
	}
}

func (m MultiSink) OnProgress(percent int) {
	for _, s := range m {
		s.OnProgress(percent)
	}
}

func (m MultiSink) OnStatsSummary(text string) {
	for _, s := range m {
		s.OnStatsSummary(text)
	}
}

// EventKind identifies a recorded event
type EventKind string

const (
	EventLog      EventKind = "log"
	EventStage    EventKind = "stage"
	EventProgress EventKind = "progress"
	EventSummary  EventKind = "summary"
)

// Event is one notification captured by a Recorder
type Event struct {
	Kind    EventKind
	Text    string
	Percent int
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) OnLog(text string)          { r.add(Event{Kind: EventLog, Text: text}) }
func (r *Recorder) OnStage(name string)        { r.add(Event{Kind: EventStage, Text: name}) }
func (r *Recorder) OnProgress(percent int)     { r.add(Event{Kind: EventProgress, Percent: percent}) }
func (r *Recorder) OnStatsSummary(text string) { r.add(Event{Kind: EventSummary, Text: text}) }

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the recorded events of one kind
func (r *Recorder) Of(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Stages returns the stage names in the order they were entered
func (r *Recorder) Stages() []string {
	var out []string
	for _, e := range r.Of(EventStage) {
		out = append(out, e.Text)
	}
	return out
}

// Progress returns every reported percentage
func (r *Recorder) Progress() []int {
	var out []int
	for _, e := range r.Of(EventProgress) {
		out = append(out, e.Percent)
	}
	return out
}

var (
	_ EventSink = NopSink{}
	_ EventSink = LoggerSink{}
	_ EventSink = MultiSink{}
	_ EventSink = (*Recorder)(nil)
)
