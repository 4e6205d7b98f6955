package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrStale is returned when the page re-rendered an element away. Callers
// treat it as "element gone" and query again.
var ErrStale = errors.New("stale element reference")

// ErrWaitTimeout is returned by WaitUntil when the predicate never held
var ErrWaitTimeout = errors.New("wait timed out")

// SelectorKind tells a driver how to evaluate a Selector expression
type SelectorKind int

const (
	CSS SelectorKind = iota
	XPath
)

func (k SelectorKind) String() string {
	if k == XPath {
		return "xpath"
	}
	return "css"
}

// Selector is a CSS or XPath element query
type Selector struct {
	Kind SelectorKind
	Expr string
}

// ByCSS builds a CSS selector
func ByCSS(expr string) Selector { return Selector{Kind: CSS, Expr: expr} }

// ByXPath builds an XPath selector
func ByXPath(expr string) Selector { return Selector{Kind: XPath, Expr: expr} }

func (s Selector) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.Expr)
}

// XPathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a string holding both quote kinds is built with concat().
func XPathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	args := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

// Element is an opaque handle to a node in the live document. ID is assigned
// by the browser and may be recycled once the node is detached.
type Element interface {
	ID() string
}

// Cookie is injected into the browser before the target page loads
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Driver owns one live browser tab. Every call blocks until the browser
// answers or ctx is done. Any element operation may fail with ErrStale.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	InjectCookie(ctx context.Context, c Cookie) error
	ScrollBy(ctx context.Context, px int) error
	ScrollOffset(ctx context.Context) (int, error)
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	FindAllWithin(ctx context.Context, parent Element, sel Selector) ([]Element, error)
	Click(ctx context.Context, el Element) error
	// Attribute returns the attribute value and whether it is present
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Close() error
}

// IsStale reports whether err means the element left the document
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}
