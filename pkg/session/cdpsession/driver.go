package cdpsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/session"
)

// Driver drives one Chrome tab through chromedp
type Driver struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	log         logger.Logger
}

type element struct {
	node *cdp.Node
}

func (e *element) ID() string { return fmt.Sprint(e.node.BackendNodeID) }

// New starts Chrome (or attaches to opts.ControlURL) and opens a tab.
// The browser outlives ctx; call Close to shut it down.
func New(ctx context.Context, opts session.Options) (*Driver, error) {
	opts = opts.Normalize()
	log := opts.Logger.WithField("engine", "chromedp")

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if opts.ControlURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.ControlURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("no-sandbox", opts.NoSandbox),
			chromedp.Flag("disable-notifications", true),
		)
		if opts.Bin != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.Bin))
		}
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	d := &Driver{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		timeout:     opts.ActionTimeout,
		log:         log,
	}

	if err := d.start(ctx); err != nil {
		_ = d.Close()
		return nil, errs.Setup("failed to start browser", err)
	}
	log.Debug("Browser started")

	return d, nil
}

// chromedpRun is replaced in tests
var chromedpRun = chromedp.Run

// start runs the first action on the tab. chromedp binds the browser
// process to the context of the first Run, so it gets the bare tab context
// without a timeout; ctx only abandons the wait.
func (d *Driver) start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedpRun(d.tabCtx, chromedp.Navigate("about:blank"))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes actions on the tab, bounded by the action timeout and by ctx
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.tabCtx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return stale(err)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) InjectCookie(ctx context.Context, c session.Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly).
			Do(ctx)
	}))
}

func (d *Driver) ScrollBy(ctx context.Context, px int) error {
	return d.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", px), nil))
}

func (d *Driver) ScrollOffset(ctx context.Context) (int, error) {
	var offset int
	if err := d.run(ctx, chromedp.Evaluate("Math.round(window.scrollY)", &offset)); err != nil {
		return 0, err
	}
	return offset, nil
}

func (d *Driver) FindAll(ctx context.Context, sel session.Selector) ([]session.Element, error) {
	by := chromedp.ByQueryAll
	if sel.Kind == session.XPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel.Expr, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return wrapAll(nodes), nil
}

func (d *Driver) FindAllWithin(ctx context.Context, parent session.Element, sel session.Selector) ([]session.Element, error) {
	n, err := unwrap(parent)
	if err != nil {
		return nil, err
	}
	if sel.Kind == session.XPath {
		return nil, fmt.Errorf("cdpsession: scoped xpath queries are not supported: %s", sel)
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel.Expr, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(n))); err != nil {
		return nil, err
	}
	return wrapAll(nodes), nil
}

func (d *Driver) Click(ctx context.Context, target session.Element) error {
	n, err := unwrap(target)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.MouseClickNode(n))
}

func (d *Driver) Attribute(ctx context.Context, target session.Element, name string) (string, bool, error) {
	n, err := unwrap(target)
	if err != nil {
		return "", false, err
	}

	var attrs []string
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		attrs, err = dom.GetAttributes(n.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", false, err
	}

	// attributes come back as a flat name, value list
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == name {
			return attrs[i+1], true, nil
		}
	}
	return "", false, nil
}

// Close shuts the tab and the browser
func (d *Driver) Close() error {
	var err error
	if d.tabCtx != nil {
		err = chromedp.Cancel(d.tabCtx)
	}
	if d.cancelTab != nil {
		d.cancelTab()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	d.log.Debug("Browser closed")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func wrapAll(nodes []*cdp.Node) []session.Element {
	out := make([]session.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{node: n})
	}
	return out
}

func unwrap(e session.Element) (*cdp.Node, error) {
	el, ok := e.(*element)
	if !ok || el.node == nil {
		return nil, fmt.Errorf("cdpsession: foreign element %T", e)
	}
	return el.node, nil
}

var staleMessages = []string{
	"Could not find node with given id",
	"No node with given id found",
	"Node with given id does not belong to the document",
	"Cannot find context with specified id",
	"Execution context was destroyed",
}

// stale maps CDP "node is gone" failures to session.ErrStale
func stale(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chromedp.ErrInvalidDimensions) {
		return fmt.Errorf("%w: %v", session.ErrStale, err)
	}
	var cdpErr *cdproto.Error
	if errors.As(err, &cdpErr) {
		for _, msg := range staleMessages {
			if strings.Contains(cdpErr.Message, msg) {
				return fmt.Errorf("%w: %v", session.ErrStale, err)
			}
		}
	}
	return err
}

var _ session.Driver = (*Driver)(nil)
