package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/pkg/extractor"
	"xmediagrab/pkg/locator"
	"xmediagrab/pkg/session"
)

var fingerprint = []string{"r-18u37iz", "r-9aw3ui"}

func testOptions(maxScrolls int) Options {
	return Options{
		MaxScrolls:      maxScrolls,
		StagnationLimit: 5,
		ScrollStep:      500,
		SettleDelay:     0,
		Fragments:       fingerprint,
	}
}

func fastExtractor(drv session.Driver) *extractor.Extractor {
	opts := extractor.DefaultOptions()
	opts.OpenPoll = session.Poll{Timeout: 20 * time.Millisecond, Interval: 2 * time.Millisecond, ExtraAttempts: 1, ExtraInterval: 2 * time.Millisecond}
	opts.AdvancePoll = session.Poll{Timeout: 20 * time.Millisecond, Interval: 2 * time.Millisecond, ExtraAttempts: 1}
	opts.CloseTimeout = 20 * time.Millisecond
	return extractor.New(drv, opts, nil)
}

func fastLocator(drv session.Driver) *locator.Locator {
	return locator.New(drv, session.Poll{Timeout: 10 * time.Millisecond, Interval: 2 * time.Millisecond}, nil)
}

func full(id string) string  { return "https://pbs.twimg.com/media/" + id + "?format=jpg&name=large" }
func small(id string) string { return "https://pbs.twimg.com/media/" + id + "?format=jpg&name=small" }

// addContainer appends a container with one thumbnail per carousel
func addContainer(drv *session.MockDriver, carousels map[string]session.MockCarousel, order ...string) (*session.MockNode, map[string]*session.MockDetailView) {
	container := drv.Node("div", map[string]string{"class": "css-175oi2r r-18u37iz r-9aw3ui"})
	views := make(map[string]*session.MockDetailView)
	for _, id := range order {
		thumb := drv.Node("img", map[string]string{"src": small(id), "alt": "Image"})
		drv.Append(container, thumb)
		views[id] = drv.AttachCarousel(thumb, carousels[id])
	}
	drv.Append(drv.Body(), container)
	return container, views
}

func single(id string) session.MockCarousel {
	return session.MockCarousel{Pages: []string{full(id)}}
}

func TestScenarioThreeSingleImages(t *testing.T) {
	drv := session.NewMockDriver()
	addContainer(drv, map[string]session.MockCarousel{
		"a": single("a"), "b": single("b"), "c": single("c"),
	}, "a", "b", "c")

	rec := &Recorder{}
	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(40), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{full("a"), full("b"), full("c")}, res.URLs)
	assert.Equal(t, 0, res.Stats.ThumbnailsFailed)
	assert.Equal(t, 3, res.Stats.URLsFound)
	assert.Equal(t, ReasonStagnation, res.Reason)
	assert.Equal(t, 6, res.Stats.ScrollIterations)
	assert.Equal(t, 1, res.Stats.ContainersScanned-res.Stats.ContainersSkipped)
}

func TestScenarioCarouselThroughLoop(t *testing.T) {
	drv := session.NewMockDriver()
	pages := []string{full("a"), full("b"), full("c"), full("d")}
	addContainer(drv, map[string]session.MockCarousel{"p": {Pages: pages}}, "p")

	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(10), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, pages, res.URLs)
}

func TestScenarioStagnationStopsEarly(t *testing.T) {
	drv := session.NewMockDriver()
	addContainer(drv, map[string]session.MockCarousel{"a": single("a")}, "a")

	scrolls := 0
	drv.OnScroll = func(d *session.MockDriver, offset int) {
		scrolls++
		if scrolls == 1 {
			addContainer(d, map[string]session.MockCarousel{"b": single("b")}, "b")
		}
	}

	rec := &Recorder{}
	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(40), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, ReasonStagnation, res.Reason)
	assert.Equal(t, 7, res.Stats.ScrollIterations)
	assert.Equal(t, 6, scrolls, "no scroll after the stopping iteration")
	assert.Equal(t, 3000, res.Stats.LastScrollOffset)
	assert.Equal(t, []string{full("a"), full("b")}, res.URLs)
}

func TestScenarioFailureMidCarouselContinues(t *testing.T) {
	drv := session.NewMockDriver()
	_, views := addContainer(drv, map[string]session.MockCarousel{
		"bad":  {Pages: []string{full("x1"), full("x2"), full("x3")}, FailNextOn: 2},
		"good": single("g"),
	}, "bad", "good")

	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(3), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{full("g")}, res.URLs)
	assert.Equal(t, 1, res.Stats.ThumbnailsFailed)
	assert.False(t, views["bad"].IsOpen())
	assert.Equal(t, 1, views["good"].Opens())
	for _, u := range res.URLs {
		assert.NotEqual(t, extractor.Sentinel, u)
	}
}

func TestScenarioSameThumbnailInTwoContainers(t *testing.T) {
	drv := session.NewMockDriver()
	_, first := addContainer(drv, map[string]session.MockCarousel{"dup": single("dup")}, "dup")
	_, second := addContainer(drv, map[string]session.MockCarousel{"dup": single("dup")}, "dup")

	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(3), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{full("dup")}, res.URLs)
	assert.Equal(t, 1, first["dup"].Opens()+second["dup"].Opens(), "extracted exactly once")
	assert.Equal(t, 1, res.Stats.ThumbnailsSkippedByDedupe)
}

// fakeExtractor records calls and answers from a table keyed by thumbnail id
type fakeExtractor struct {
	calls   []string
	answers map[string][]string
	after   func(calls int)
}

func (f *fakeExtractor) Extract(ctx context.Context, thumb session.Element) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, thumb.ID())
	urls, ok := f.answers[thumb.ID()]
	if !ok {
		urls = []string{full("t" + thumb.ID())}
	}
	if f.after != nil {
		f.after(len(f.calls))
	}
	return urls, nil
}

func TestRecycledIdentifiersAreNotRescanned(t *testing.T) {
	drv := session.NewMockDriver()
	container, _ := addContainer(drv, map[string]session.MockCarousel{"a": single("a")}, "a")

	drv.OnScroll = func(d *session.MockDriver, offset int) {
		if offset != 500 {
			return
		}
		// the renderer recycles the container's id for new content
		d.Remove(container)
		recycled := d.NodeWithID(container.ID(), "div", map[string]string{"class": "r-18u37iz r-9aw3ui"})
		d.Append(recycled, d.Node("img", map[string]string{"src": small("fresh")}))
		d.Append(d.Body(), recycled)
	}

	ext := &fakeExtractor{}
	res, err := Run(context.Background(), drv, fastLocator(drv), ext, testOptions(4), nil, nil)
	require.NoError(t, err)

	assert.Len(t, ext.calls, 1)
	assert.Len(t, res.URLs, 1)
	assert.Equal(t, 3, res.Stats.ContainersSkipped)
}

func TestMaxScrollsTermination(t *testing.T) {
	drv := session.NewMockDriver()
	addContainer(drv, map[string]session.MockCarousel{"0": single("0")}, "0")
	drv.OnScroll = func(d *session.MockDriver, offset int) {
		id := fmt.Sprint(offset)
		addContainer(d, map[string]session.MockCarousel{id: single(id)}, id)
	}

	rec := &Recorder{}
	res, err := Run(context.Background(), drv, fastLocator(drv), fastExtractor(drv), testOptions(4), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxScrolls, res.Reason)
	assert.Equal(t, 4, res.Stats.ScrollIterations)
	assert.Len(t, res.URLs, 4)
	assert.Equal(t, 1500, res.Stats.LastScrollOffset)
	assert.Equal(t, []int{0, 22, 45, 67, 90}, rec.Progress())
}

func TestSentinelNeverLeaks(t *testing.T) {
	drv := session.NewMockDriver()
	addContainer(drv, map[string]session.MockCarousel{"a": single("a"), "b": single("b"), "c": single("c")}, "a", "b", "c")

	ext := &fakeExtractor{answers: map[string][]string{}}
	thumbs, err := drv.FindAll(context.Background(), session.ByCSS("img"))
	require.NoError(t, err)
	ext.answers[thumbs[0].ID()] = []string{extractor.Sentinel}
	ext.answers[thumbs[1].ID()] = []string{full("b"), extractor.Sentinel}

	res, err := Run(context.Background(), drv, fastLocator(drv), ext, testOptions(2), nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.URLs, extractor.Sentinel)
	assert.Equal(t, []string{full("b"), full("t" + thumbs[2].ID())}, res.URLs)
	assert.Equal(t, 1, res.Stats.ThumbnailsFailed)
}

func TestUnreadableThumbnailCountsAsFailure(t *testing.T) {
	drv := session.NewMockDriver()
	container := drv.Node("div", map[string]string{"class": "r-18u37iz r-9aw3ui"})
	drv.Append(container, drv.Node("img", map[string]string{"src": small("ok")}))
	drv.Append(drv.Body(), container)

	ext := &fakeExtractor{}
	loc := &staleLocator{Locator: fastLocator(drv), drv: drv}
	res, err := Run(context.Background(), drv, loc, ext, testOptions(1), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ThumbnailsFailed)
	assert.Empty(t, ext.calls)
}

// staleLocator detaches every thumbnail right after returning it
type staleLocator struct {
	*locator.Locator
	drv *session.MockDriver
}

func (s *staleLocator) Thumbnails(ctx context.Context, c session.Element) []session.Element {
	thumbs := s.Locator.Thumbnails(ctx, c)
	for _, th := range thumbs {
		s.drv.Remove(th.(*session.MockNode))
	}
	return thumbs
}

func TestCancellation(t *testing.T) {
	t.Run("stops before the next open and returns partial result", func(t *testing.T) {
		drv := session.NewMockDriver()
		addContainer(drv, map[string]session.MockCarousel{"a": single("a"), "b": single("b")}, "a", "b")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ext := &fakeExtractor{after: func(calls int) {
			if calls == 1 {
				cancel()
			}
		}}

		rec := &Recorder{}
		res, err := Run(ctx, drv, fastLocator(drv), ext, testOptions(10), rec, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ReasonCanceled, res.Reason)
		assert.Len(t, ext.calls, 1)
		assert.Len(t, res.URLs, 1)
		require.Len(t, rec.Of(EventSummary), 1)
		assert.True(t, strings.Contains(rec.Of(EventSummary)[0].Text, "Image URLs found: 1"))
	})

	t.Run("during the last iteration", func(t *testing.T) {
		drv := session.NewMockDriver()
		addContainer(drv, map[string]session.MockCarousel{"a": single("a")}, "a")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ext := &fakeExtractor{after: func(int) { cancel() }}

		res, err := Run(ctx, drv, fastLocator(drv), ext, testOptions(1), nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ReasonCanceled, res.Reason)
		assert.Equal(t, 1, res.Stats.ScrollIterations)
		assert.Len(t, res.URLs, 1)
	})

	t.Run("already canceled does nothing", func(t *testing.T) {
		drv := session.NewMockDriver()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := Run(ctx, drv, fastLocator(drv), &fakeExtractor{}, testOptions(10), nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, res.Stats.ScrollIterations)
		assert.Empty(t, res.URLs)
	})

	t.Run("during settle delay", func(t *testing.T) {
		drv := session.NewMockDriver()
		ctx, cancel := context.WithCancel(context.Background())
		drv.OnScroll = func(*session.MockDriver, int) { cancel() }

		opts := testOptions(10)
		opts.SettleDelay = time.Hour
		res, err := Run(ctx, drv, fastLocator(drv), &fakeExtractor{}, opts, nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, res.Stats.ScrollIterations)
	})
}

func TestEventsOrder(t *testing.T) {
	drv := session.NewMockDriver()
	addContainer(drv, map[string]session.MockCarousel{"a": single("a")}, "a")

	rec := &Recorder{}
	_, err := Run(context.Background(), drv, fastLocator(drv), &fakeExtractor{}, testOptions(2), rec, nil)
	require.NoError(t, err)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, Event{Kind: EventStage, Text: StageDiscover}, events[0])
	assert.Equal(t, EventSummary, events[len(events)-1].Kind)
	assert.Equal(t, []string{StageDiscover}, rec.Stages())

	last := -1
	for _, p := range rec.Progress() {
		assert.GreaterOrEqual(t, p, last)
		assert.LessOrEqual(t, p, 90)
		last = p
	}
}
