package rodsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/session"
)

// Driver drives one Chrome tab through go-rod
type Driver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	timeout  time.Duration
	log      logger.Logger
}

type element struct {
	el *rod.Element
	id string
}

func (e *element) ID() string { return e.id }

// New launches Chrome (or attaches to opts.ControlURL) and opens a blank tab.
// The browser outlives ctx; call Close to shut it down.
func New(ctx context.Context, opts session.Options) (*Driver, error) {
	opts = opts.Normalize()
	log := opts.Logger.WithField("engine", "rod")

	var l *launcher.Launcher
	controlURL := opts.ControlURL
	if controlURL == "" {
		l = launcher.New().
			Headless(opts.Headless).
			NoSandbox(opts.NoSandbox).
			Set("disable-notifications")
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, errs.Setup("failed to launch browser", err)
		}
		controlURL = u
		log.WithField("control_url", controlURL).Debug("Browser launched")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, errs.Setup("failed to connect to browser", err)
	}

	d := &Driver{browser: browser, launcher: l, timeout: opts.ActionTimeout, log: log}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = d.Close()
		return nil, errs.Setup("failed to open browser tab", err)
	}
	d.page = page.Context(context.Background())

	if opts.UserAgent != "" {
		if err := d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = d.Close()
			return nil, errs.Setup("failed to set user agent", err)
		}
	}

	return d, nil
}

func (d *Driver) pageCtx(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	return d.page.Context(ctx), cancel
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p, cancel := d.pageCtx(ctx)
	defer cancel()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

func (d *Driver) InjectCookie(ctx context.Context, c session.Cookie) error {
	p, cancel := d.pageCtx(ctx)
	defer cancel()

	return p.SetCookies([]*proto.NetworkCookieParam{{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}})
}

func (d *Driver) ScrollBy(ctx context.Context, px int) error {
	p, cancel := d.pageCtx(ctx)
	defer cancel()

	_, err := p.Eval(`(px) => window.scrollBy(0, px)`, px)
	return stale(err)
}

func (d *Driver) ScrollOffset(ctx context.Context) (int, error) {
	p, cancel := d.pageCtx(ctx)
	defer cancel()

	res, err := p.Eval(`() => Math.round(window.scrollY)`)
	if err != nil {
		return 0, stale(err)
	}
	return res.Value.Int(), nil
}

func (d *Driver) FindAll(ctx context.Context, sel session.Selector) ([]session.Element, error) {
	p, cancel := d.pageCtx(ctx)
	defer cancel()

	var (
		els rod.Elements
		err error
	)
	if sel.Kind == session.XPath {
		els, err = p.ElementsX(sel.Expr)
	} else {
		els, err = p.Elements(sel.Expr)
	}
	if err != nil {
		return nil, stale(err)
	}
	return wrapAll(els), nil
}

func (d *Driver) FindAllWithin(ctx context.Context, parent session.Element, sel session.Selector) ([]session.Element, error) {
	el, err := unwrap(parent)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	scoped := el.Context(ctx)

	var els rod.Elements
	if sel.Kind == session.XPath {
		els, err = scoped.ElementsX(sel.Expr)
	} else {
		els, err = scoped.Elements(sel.Expr)
	}
	if err != nil {
		return nil, stale(err)
	}
	return wrapAll(els), nil
}

func (d *Driver) Click(ctx context.Context, target session.Element) error {
	el, err := unwrap(target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return stale(el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (d *Driver) Attribute(ctx context.Context, target session.Element, name string) (string, bool, error) {
	el, err := unwrap(target)
	if err != nil {
		return "", false, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	v, err := el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, stale(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Close shuts the tab and the browser, and kills a launched process
func (d *Driver) Close() error {
	var closeErr error
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		closeErr = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	d.log.Debug("Browser closed")
	return closeErr
}

func wrapAll(els rod.Elements) []session.Element {
	out := make([]session.Element, 0, len(els))
	for _, el := range els {
		node, err := el.Describe(0, false)
		if err != nil {
			// detached between query and describe
			continue
		}
		out = append(out, &element{el: el, id: fmt.Sprint(node.BackendNodeID)})
	}
	return out
}

func unwrap(e session.Element) (*rod.Element, error) {
	el, ok := e.(*element)
	if !ok || el.el == nil {
		return nil, fmt.Errorf("rodsession: foreign element %T", e)
	}
	return el.el, nil
}

var staleMessages = []string{
	"Could not find object with given id",
	"Could not find node with given id",
	"No node with given id found",
	"Node with given id does not belong to the document",
	"Cannot find context with specified id",
	"Execution context was destroyed",
}

// stale maps rod and CDP "node is gone" failures to session.ErrStale
func stale(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, &rod.ObjectNotFoundError{}) || errors.Is(err, &rod.InvisibleShapeError{}) {
		return fmt.Errorf("%w: %v", session.ErrStale, err)
	}
	var cdpErr *cdp.Error
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
