package discovery

import (
	"context"
	"fmt"

	"xmediagrab/pkg/extractor"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/retry"
	"xmediagrab/pkg/session"
)

// ContainerSource finds containers and the thumbnails inside them
type ContainerSource interface {
	Containers(ctx context.Context, fragments []string) ([]session.Element, error)
	Thumbnails(ctx context.Context, container session.Element) []session.Element
}

// ImageExtractor resolves a thumbnail to full-size URLs or the sentinel
type ImageExtractor interface {
	Extract(ctx context.Context, thumb session.Element) ([]string, error)
}

// Loop scrolls the media grid and collects full-size image URLs. It owns
// the dedupe sets and the statistics of one run and is not reusable.
type Loop struct {
	drv  session.Driver
	loc  ContainerSource
	ext  ImageExtractor
	opts Options
	sink EventSink
	log  logger.Logger

	seenContainers map[string]struct{}
	seenThumbnails map[string]struct{}
	seenURLs       map[string]struct{}
	urls           []string
	stats          Stats
}

// New creates a Loop. A nil sink drops events.
func New(drv session.Driver, loc ContainerSource, ext ImageExtractor, opts Options, sink EventSink, log logger.Logger) *Loop {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.StagnationLimit <= 0 {
		opts.StagnationLimit = DefaultOptions().StagnationLimit
	}
	return &Loop{
		drv:            drv,
		loc:            loc,
		ext:            ext,
		opts:           opts,
		sink:           sink,
		log:            log.WithField("component", "discovery"),
		seenContainers: make(map[string]struct{}),
		seenThumbnails: make(map[string]struct{}),
		seenURLs:       make(map[string]struct{}),
		stats:          Stats{MaxScrolls: opts.MaxScrolls},
	}
}

// Run scrolls until MaxScrolls iterations ran or StagnationLimit consecutive
// iterations found nothing new. Both are normal ends. On cancellation the
// partial result is returned together with ctx.Err(). The statistics
// summary is always emitted.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	l.sink.OnStage(StageDiscover)
	l.sink.OnProgress(0)

	reason, err := l.run(ctx)

	result := l.result(reason)
	l.sink.OnLog(fmt.Sprintf("Discovery finished (%s): %d image URLs", reason, len(result.URLs)))
	l.sink.OnStatsSummary(result.Stats.Summary())
	l.log.WithFields(map[string]interface{}{
		"reason":     string(reason),
		"urls":       len(result.URLs),
		"iterations": result.Stats.ScrollIterations,
		"failed":     result.Stats.ThumbnailsFailed,
	}).Info("Discovery finished")

	return result, err
}

func (l *Loop) result(reason StopReason) Result {
	stats := l.stats
	stats.URLsFound = len(l.urls)
	return Result{
		URLs:   append([]string(nil), l.urls...),
		Stats:  stats,
		Reason: reason,
	}
}

func (l *Loop) run(ctx context.Context) (StopReason, error) {
	stagnation := 0

	for iter := 1; iter <= l.opts.MaxScrolls; iter++ {
		if err := ctx.Err(); err != nil {
			return ReasonCanceled, err
		}
		l.stats.ScrollIterations = iter
		l.sink.OnLog(fmt.Sprintf("Scroll iteration %d / %d", iter, l.opts.MaxScrolls))

		found, err := l.scan(ctx)
		if err != nil {
			return ReasonCanceled, err
		}

		if found == 0 {
			stagnation++
			l.sink.OnLog(fmt.Sprintf("No new images this iteration (%d in a row)", stagnation))
		} else {
			stagnation = 0
		}
		l.sink.OnLog(fmt.Sprintf("New this iteration: %d, total: %d", found, len(l.urls)))
		l.sink.OnProgress(DiscoveryPercent(iter, l.opts.MaxScrolls))

		// a cancel the scan absorbed still ends the run as canceled
		if err := ctx.Err(); err != nil {
			return ReasonCanceled, err
		}
		if stagnation >= l.opts.StagnationLimit {
			l.sink.OnLog("Nothing new for a while, stopping")
			return ReasonStagnation, nil
		}
		if iter == l.opts.MaxScrolls {
			break
		}

		if err := l.scroll(ctx); err != nil {
			return ReasonCanceled, err
		}
	}

	return ReasonMaxScrolls, nil
}

// scan processes every container visible now and returns how many new
// image URLs it added. Only cancellation is returned as an error.
func (l *Loop) scan(ctx context.Context) (int, error) {
	containers, err := l.loc.Containers(ctx, l.opts.Fragments)
	if err != nil {
		return 0, err
	}
	l.log.WithField("containers", len(containers)).Debug("Containers visible")

	found := 0
	for _, c := range containers {
		l.stats.ContainersScanned++
		id := c.ID()
		if _, ok := l.seenContainers[id]; ok {
			l.stats.ContainersSkipped++
			continue
		}
		l.seenContainers[id] = struct{}{}

		thumbs := l.loc.Thumbnails(ctx, c)
		l.stats.ThumbnailsScanned += len(thumbs)
		for _, thumb := range thumbs {
			n, err := l.process(ctx, thumb)
			if err != nil {
				return found, err
			}
			found += n
		}
	}
	return found, nil
}

func (l *Loop) process(ctx context.Context, thumb session.Element) (int, error) {
	preview, ok, err := l.drv.Attribute(ctx, thumb, "src")
	if err != nil || !ok || preview == "" {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		l.stats.ThumbnailsFailed++
		l.log.WithError(err).WithField("thumbnail", thumb.ID()).Debug("Thumbnail has no readable src")
		return 0, nil
	}

	if _, seen := l.seenThumbnails[preview]; seen {
		l.stats.ThumbnailsSkippedByDedupe++
		return 0, nil
	}
	// marked before extraction so a failing thumbnail is never retried
	l.seenThumbnails[preview] = struct{}{}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	urls, err := l.ext.Extract(ctx, thumb)
	if err != nil {
		return 0, err
	}

	if isSentinel(urls) {
		l.stats.ThumbnailsFailed++
		l.sink.OnLog("Skipped a thumbnail (video or extraction failure)")
		return 0, nil
	}

	added := 0
	for _, u := range urls {
		if u == extractor.Sentinel || u == "" {
			continue
		}
		if _, dup := l.seenURLs[u]; dup {
			l.stats.DuplicateURLs++
			continue
		}
		l.seenURLs[u] = struct{}{}
		l.urls = append(l.urls, u)
		added++
	}
	if added > 0 {
		l.sink.OnLog(fmt.Sprintf("Found %d image(s), %d total", added, len(l.urls)))
	}
	return added, nil
}

func isSentinel(urls []string) bool {
	if len(urls) == 0 {
		return true
	}
	for _, u := range urls {
		if u != extractor.Sentinel {
			return false
		}
	}
	return true
}

func (l *Loop) scroll(ctx context.Context) error {
	if err := l.drv.ScrollBy(ctx, l.opts.ScrollStep); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.WithError(err).Warn("Scroll failed")
	} else if offset, err := l.drv.ScrollOffset(ctx); err == nil {
		l.stats.LastScrollOffset = offset
	}

	if err := retry.Wait(ctx, l.opts.SettleDelay); err != nil {
		return err
	}
	return nil
}

// Run is a convenience wrapper creating a Loop and running it once
func Run(ctx context.Context, drv session.Driver, loc ContainerSource, ext ImageExtractor, opts Options, sink EventSink, log logger.Logger) (Result, error) {
	return New(drv, loc, ext, opts, sink, log).Run(ctx)
}
