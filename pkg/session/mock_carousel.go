package session

import (
	"errors"
	"sync"
)

// ErrMockInjected is returned by scripted failures
var ErrMockInjected = errors.New("mock: injected failure")

// MockCarousel scripts the detail view a thumbnail opens
type MockCarousel struct {
	// Pages are the full-size URLs in carousel order; next wraps after the last
	Pages []string
	// Alt defaults to "Image"; anything else models a video placeholder
	Alt        string
	NextLabel  string
	CloseLabel string
	// FailNextOn makes the next control fail while on this 1-based page
	FailNextOn int
	// FreezeAfter stops the image from changing once this 1-based page shows
	FreezeAfter int
	// NoCloseControl omits the close control
	NoCloseControl bool
	// DialogAttrs replaces the detail view's role="dialog" aria-modal="true";
	// an empty non-nil map renders an unmarked container
	DialogAttrs map[string]string
}

// MockDetailView tracks one opened detail view
type MockDetailView struct {
	mu     sync.Mutex
	opens  int
	closes int
	dialog *MockNode
}

// Opens returns how many times the view was opened
func (v *MockDetailView) Opens() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opens
}

// IsOpen reports whether the view is currently shown
func (v *MockDetailView) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dialog != nil
}

// AttachCarousel makes clicking thumb open a detail view showing c
func (d *MockDriver) AttachCarousel(thumb *MockNode, c MockCarousel) *MockDetailView {
	if c.Alt == "" {
		c.Alt = "Image"
	}
	if c.NextLabel == "" {
		c.NextLabel = "Next slide"
	}
	if c.CloseLabel == "" {
		c.CloseLabel = "Close"
	}

	view := &MockDetailView{}
	thumb.OnClick = func(d *MockDriver) error {
		view.mu.Lock()
		if view.dialog != nil {
			view.mu.Unlock()
			return nil
		}
		view.opens++
		view.mu.Unlock()

		attrs := c.DialogAttrs
		if attrs == nil {
			attrs = map[string]string{"role": "dialog", "aria-modal": "true"}
		}
		dialog := d.Node("div", attrs)
		page := 0
		if len(c.Pages) > 0 {
			img := d.Node("img", map[string]string{"src": c.Pages[0], "alt": c.Alt})
			d.Append(dialog, img)

			if len(c.Pages) > 1 {
				next := d.Node("button", map[string]string{"aria-label": c.NextLabel})
				next.OnClick = func(d *MockDriver) error {
					if c.FailNextOn == page+1 {
						return ErrMockInjected
					}
					if c.FreezeAfter > 0 && page+1 >= c.FreezeAfter {
						return nil
					}
					page = (page + 1) % len(c.Pages)
					d.SetAttr(img, "src", c.Pages[page])
					return nil
				}
				d.Append(dialog, next)
			}
		}

		if !c.NoCloseControl {
			closeBtn := d.Node("button", map[string]string{"aria-label": c.CloseLabel})
			closeBtn.OnClick = func(d *MockDriver) error {
				view.mu.Lock()
				defer view.mu.Unlock()
				if view.dialog != nil {
					d.Remove(view.dialog)
					view.dialog = nil
					view.closes++
				}
				return nil
			}
			d.Append(dialog, closeBtn)
		}

		d.Append(d.Body(), dialog)
		view.mu.Lock()
		view.dialog = dialog
		view.mu.Unlock()
		return nil
	}
	return view
}
