package discovery

import (
	"fmt"
	"strings"
	"time"
)

// StopReason tells why the scroll loop ended
type StopReason string

const (
	ReasonMaxScrolls StopReason = "max-scrolls"
	ReasonStagnation StopReason = "stagnation"
	ReasonCanceled   StopReason = "canceled"
)

// Options configure one discovery run
type Options struct {
	MaxScrolls      int
	StagnationLimit int
	ScrollStep      int
	SettleDelay     time.Duration
	// Fragments is the class-name fingerprint of media containers
	Fragments []string
}

// DefaultOptions returns the loop defaults
func DefaultOptions() Options {
	return Options{
		MaxScrolls:      40,
		StagnationLimit: 5,
		ScrollStep:      500,
		SettleDelay:     2 * time.Second,
		Fragments:       []string{"r-18u37iz", "r-9aw3ui"},
	}
}

// Stats accumulates counters over a run. It is only written by the loop
// and returned by value.
type Stats struct {
	ScrollIterations          int `json:"scroll_iterations"`
	MaxScrolls                int `json:"max_scrolls"`
	ContainersScanned         int `json:"containers_scanned"`
	ContainersSkipped         int `json:"containers_skipped"`
	ThumbnailsScanned         int `json:"thumbnails_scanned"`
	ThumbnailsSkippedByDedupe int `json:"thumbnails_skipped_by_dedupe"`
	ThumbnailsFailed          int `json:"thumbnails_failed"`
	DuplicateURLs             int `json:"duplicate_urls"`
	URLsFound                 int `json:"urls_found"`
	LastScrollOffset          int `json:"last_scroll_offset"`
}

// Summary renders the end-of-run statistics block
func (s Stats) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("=", 55)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "                 Discovery summary")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Scroll iterations: %d / %d\n", s.ScrollIterations, s.MaxScrolls)
	fmt.Fprintf(&b, "Last scroll offset: %dpx\n", s.LastScrollOffset)
	fmt.Fprintln(&b, "--- Containers ---")
	fmt.Fprintf(&b, "Scanned: %d\n", s.ContainersScanned)
	fmt.Fprintf(&b, "Skipped (already processed): %d\n", s.ContainersSkipped)
	fmt.Fprintln(&b, "--- Thumbnails ---")
	fmt.Fprintf(&b, "Scanned: %d\n", s.ThumbnailsScanned)
	fmt.Fprintf(&b, "Skipped by dedupe: %d\n", s.ThumbnailsSkippedByDedupe)
	fmt.Fprintf(&b, "Failed to extract: %d\n", s.ThumbnailsFailed)
	fmt.Fprintln(&b, "--- Result ---")
	fmt.Fprintf(&b, "Image URLs found: %d", s.URLsFound)
	if s.DuplicateURLs > 0 {
		fmt.Fprintf(&b, " (%d repeats dropped)", s.DuplicateURLs)
	}
	fmt.Fprintln(&b)
	b.WriteString(rule)
	return b.String()
}

// Result is what a discovery run hands to the download phase
type Result struct {
	URLs   []string   `json:"urls"`
	Stats  Stats      `json:"stats"`
	Reason StopReason `json:"reason"`
}
