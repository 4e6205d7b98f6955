package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/session"
)

// Sentinel replaces the URL list when a thumbnail could not be extracted,
// typically because it is a video
const Sentinel = "VIDEO_OR_FAIL"

const (
	// DetailSelector matches the modal that hosts the detail view
	DetailSelector = `[aria-modal="true"]`
	// DialogSelector is the looser match used when no modal is marked
	DialogSelector = `[role="dialog"]`
	// FullImageSelector matches full-size images inside the detail view
	FullImageSelector = `img[src*="pbs.twimg.com/media"]`

	closeSettle = 2 * time.Second
)

// Options configure one Extractor
type Options struct {
	// AltMarkers mark a detail image as a photo rather than a video poster
	AltMarkers  []string
	NextLabels  []string
	CloseLabels []string

	OpenPoll     session.Poll
	AdvancePoll  session.Poll
	CloseTimeout time.Duration

	// OnTransition, if set, observes every state change
	OnTransition func(from, to State)
}

// DefaultOptions returns the budgets the site needs in practice
func DefaultOptions() Options {
	return Options{
		AltMarkers:  []string{"Image", "图像"},
		NextLabels:  []string{"Next slide", "下一张幻灯片"},
		CloseLabels: []string{"Close", "关闭"},
		OpenPoll: session.Poll{
			Timeout:       3 * time.Second,
			Interval:      200 * time.Millisecond,
			ExtraAttempts: 3,
			ExtraInterval: 300 * time.Millisecond,
		},
		AdvancePoll: session.Poll{
			Timeout:       8 * time.Second,
			Interval:      200 * time.Millisecond,
			ExtraAttempts: 1,
		},
		CloseTimeout: 20 * time.Second,
	}
}

// Extractor opens a thumbnail's detail view, walks its carousel and closes it
type Extractor struct {
	drv      session.Driver
	opts     Options
	log      logger.Logger
	nextSel  session.Selector
	closeSel session.Selector
}

// New creates an Extractor
func New(drv session.Driver, opts Options, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Extractor{
		drv:      drv,
		opts:     opts,
		log:      log.WithField("component", "extractor"),
		nextSel:  session.ByXPath(ButtonXPath(opts.NextLabels)),
		closeSel: session.ByXPath(ButtonXPath(opts.CloseLabels)),
	}
}

// ButtonXPath matches buttons carrying any of the aria labels
func ButtonXPath(labels []string) string {
	conds := make([]string, 0, len(labels))
	for _, l := range labels {
		conds = append(conds, "@aria-label="+session.XPathLiteral(l))
	}
	return fmt.Sprintf("//button[%s]", strings.Join(conds, " or "))
}

type tracer struct {
	state State
	hook  func(from, to State)
}

func (t *tracer) to(s State) {
	from := t.state
	t.state = s
	if t.hook != nil {
		t.hook(from, s)
	}
}

// Extract returns every distinct full-size URL behind thumb, in carousel
// order, or exactly []string{Sentinel}. The detail view is closed before it
// returns. A context already done on entry returns its error without
// clicking anything; cancellation after that yields the sentinel.
func (e *Extractor) Extract(ctx context.Context, thumb session.Element) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tr := &tracer{state: Idle, hook: e.opts.OnTransition}
	urls, err := e.collect(ctx, thumb, tr)
	opened := err == nil || tr.state != Opening

	closeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		closeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), e.opts.CloseTimeout+closeSettle)
		defer cancel()
	}
	tr.to(Closing)
	if cerr := e.close(closeCtx); cerr != nil {
		e.log.WithError(cerr).WithField("thumbnail", thumb.ID()).Warn("Detail view did not close")
	}

	if err != nil {
		tr.to(Failed)
		e.log.WithError(err).WithFields(map[string]interface{}{
			"thumbnail": thumb.ID(),
			"opened":    opened,
		}).Debug("Extraction failed")
		logger.LogExtraction(e.log, thumb.ID(), 0, true)
		return []string{Sentinel}, nil
	}

	tr.to(Closed)
	logger.LogExtraction(e.log, thumb.ID(), len(urls), false)
	return urls, nil
}

func (e *Extractor) collect(ctx context.Context, thumb session.Element, tr *tracer) ([]string, error) {
	tr.to(Opening)
	if err := e.drv.Click(ctx, thumb); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeExtraction, "failed to open detail view", err)
	}

	current, err := session.WaitUntil(ctx, e.opts.OpenPoll, func(ctx context.Context) (string, bool, error) {
		srcs, err := e.detailImages(ctx, thumb)
		if err != nil || len(srcs) == 0 {
			return "", false, err
		}
		return srcs[0], true, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeExtraction, "no full-size image in detail view", err)
	}

	tr.to(Collecting)
	seen := newURLSet()
	seen.add(current)

	for {
		tr.to(Advancing)
		next, err := e.firstMatch(ctx, e.nextSel)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeExtraction, "failed to look up next control", err)
		}
		if next == nil {
			break
		}
		if err := e.drv.Click(ctx, next); err != nil {
			if session.IsStale(err) {
				break
			}
			return nil, errs.Wrap(errs.ErrorTypeExtraction, "failed to advance carousel", err)
		}

		prev := current
		changed, err := session.WaitUntil(ctx, e.opts.AdvancePoll, func(ctx context.Context) (string, bool, error) {
			srcs, err := e.detailImages(ctx, thumb)
			if err != nil {
				return "", false, err
			}
			for _, src := range srcs {
				if src != prev {
					return src, true, nil
				}
			}
			return "", false, nil
		})
		if session.IsTimeout(err) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeExtraction, "failed waiting for next image", err)
		}
		if seen.has(changed) {
			// wrapped around to an image already collected
			break
		}

		tr.to(Collecting)
		seen.add(changed)
		current = changed
	}

	return seen.list(), nil
}

// detailImages returns the src of every photo currently shown in the
// detail view. Without a dialog on the page the whole document is searched,
// leaving out the thumbnail that was clicked.
func (e *Extractor) detailImages(ctx context.Context, thumb session.Element) ([]string, error) {
	dialogs, err := e.dialogs(ctx)
	if err != nil {
		return nil, err
	}

	var imgs []session.Element
	if len(dialogs) == 0 {
		all, err := e.drv.FindAll(ctx, session.ByCSS(FullImageSelector))
		if err != nil {
			return nil, err
		}
		for _, img := range all {
			if img.ID() != thumb.ID() {
				imgs = append(imgs, img)
			}
		}
	}
	for _, dialog := range dialogs {
		found, err := e.drv.FindAllWithin(ctx, dialog, session.ByCSS(FullImageSelector))
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, found...)
	}

	var srcs []string
	for _, img := range imgs {
		alt, _, err := e.drv.Attribute(ctx, img, "alt")
		if err != nil {
			return nil, err
		}
		if !e.isPhoto(alt) {
			continue
		}
		src, ok, err := e.drv.Attribute(ctx, img, "src")
		if err != nil {
			return nil, err
		}
		if ok && src != "" {
			srcs = append(srcs, src)
		}
	}
	return srcs, nil
}

// dialogs returns the modal hosting the detail view, falling back to any
// element with the dialog role
func (e *Extractor) dialogs(ctx context.Context) ([]session.Element, error) {
	modals, err := e.drv.FindAll(ctx, session.ByCSS(DetailSelector))
	if err != nil || len(modals) > 0 {
		return modals, err
	}
	return e.drv.FindAll(ctx, session.ByCSS(DialogSelector))
}

func (e *Extractor) isPhoto(alt string) bool {
	for _, marker := range e.opts.AltMarkers {
		if marker != "" && strings.Contains(alt, marker) {
			return true
		}
	}
	return false
}

func (e *Extractor) firstMatch(ctx context.Context, sel session.Selector) (session.Element, error) {
	els, err := e.drv.FindAll(ctx, sel)
	if err != nil {
		if session.IsStale(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// close dismisses the detail view. With no dialog on the page the close
// control is looked up once; otherwise it is awaited for CloseTimeout.
func (e *Extractor) close(ctx context.Context) error {
	dialogs, err := e.dialogs(ctx)
	if err != nil && !session.IsStale(err) {
		return err
	}

	poll := session.Poll{Timeout: e.opts.CloseTimeout, Interval: e.opts.OpenPoll.Interval}
	if len(dialogs) == 0 {
		poll.Timeout = 0
	}

	_, err = session.WaitUntil(ctx, poll, func(ctx context.Context) (struct{}, bool, error) {
		btn, err := e.firstMatch(ctx, e.closeSel)
		if err != nil || btn == nil {
			return struct{}{}, false, err
		}
		if err := e.drv.Click(ctx, btn); err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, true, nil
	})
	if err != nil {
		if len(dialogs) == 0 && session.IsTimeout(err) {
			return nil
		}
		return fmt.Errorf("failed to close detail view: %w", err)
	}

	_, err = session.WaitUntil(ctx, session.Poll{Timeout: closeSettle, Interval: poll.Interval}, func(ctx context.Context) (bool, bool, error) {
		if len(dialogs) == 0 {
			return true, true, nil
		}
		open, err := e.dialogs(ctx)
		return true, len(open) == 0, err
	})
	if err != nil {
		return fmt.Errorf("detail view still open after close: %w", err)
	}
	return nil
}
