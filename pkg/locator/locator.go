package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/session"
)

// ThumbnailSelector matches grid images served from the media path
const ThumbnailSelector = `img[src*="media/"]`

// DefaultContainerPoll waits up to 10s for the first container
var DefaultContainerPoll = session.Poll{
	Timeout:  10 * time.Second,
	Interval: 200 * time.Millisecond,
}

// Locator finds media containers and their thumbnails on the current page
type Locator struct {
	drv  session.Driver
	poll session.Poll
	log  logger.Logger
}

// New creates a Locator. A zero poll uses DefaultContainerPoll.
func New(drv session.Driver, poll session.Poll, log logger.Logger) *Locator {
	if poll.Timeout <= 0 {
		poll = DefaultContainerPoll
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Locator{drv: drv, poll: poll, log: log.WithField("component", "locator")}
}

// ContainerXPath builds the query matching divs whose class contains every fragment
func ContainerXPath(fragments []string) string {
	conds := make([]string, 0, len(fragments))
	for _, f := range fragments {
		conds = append(conds, fmt.Sprintf("contains(@class, %s)", session.XPathLiteral(f)))
	}
	return fmt.Sprintf("//div[%s]", strings.Join(conds, " and "))
}

// Containers returns every attached container matching the fragments,
// waiting for at least one. Timeouts and empty fingerprints yield an empty
// slice. Only context cancellation is returned as an error.
func (l *Locator) Containers(ctx context.Context, fragments []string) ([]session.Element, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	sel := session.ByXPath(ContainerXPath(fragments))
	found, err := session.WaitUntil(ctx, l.poll, func(ctx context.Context) ([]session.Element, bool, error) {
		els, err := l.drv.FindAll(ctx, sel)
		if err != nil {
			return nil, false, err
		}
		return els, len(els) > 0, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if session.IsTimeout(err) {
			l.log.WithField("selector", sel.Expr).Debug("No containers found")
		} else {
			l.log.WithError(err).Warn("Container query failed")
		}
		return nil, nil
	}
	return found, nil
}

// Thumbnails returns the media images inside container. Failures are logged
// and yield an empty slice.
func (l *Locator) Thumbnails(ctx context.Context, container session.Element) []session.Element {
	thumbs, err := l.drv.FindAllWithin(ctx, container, session.ByCSS(ThumbnailSelector))
	if err != nil {
		fields := map[string]interface{}{"container": container.ID()}
		if session.IsStale(err) {
			l.log.DebugWithFields("Container left the page", fields)
		} else {
			l.log.WithError(err).WarnWithFields("Thumbnail query failed", fields)
		}
		return nil
	}
	return thumbs
}
