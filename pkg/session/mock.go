package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// MockNode is one element of a MockDriver document
type MockNode struct {
	Tag   string
	Attrs map[string]string
	// OnClick runs after the click is recorded; its error is returned by Click
	OnClick func(d *MockDriver) error

	id       string
	parent   *MockNode
	children []*MockNode
}

// ID returns the node's session identifier
func (n *MockNode) ID() string { return n.id }

// Children returns the node's current children
func (n *MockNode) Children() []*MockNode {
	return append([]*MockNode(nil), n.children...)
}

// MockDriver is an in-memory Driver over a scriptable DOM. Nodes removed
// from the document answer every call with ErrStale.
type MockDriver struct {
	mu      sync.Mutex
	root    *MockNode
	nextID  int
	offset  int
	cookies []Cookie
	visited []string
	clicks  []string
	closed  bool

	// NavigateErr and CookieErr fail the matching calls when set
	NavigateErr error
	CookieErr   error
	// OnScroll runs after every ScrollBy with the new offset
	OnScroll func(d *MockDriver, offset int)
	// FindErr, when it returns non-nil, fails the query
	FindErr func(sel Selector) error
}

// NewMockDriver returns a driver with an empty body
func NewMockDriver() *MockDriver {
	d := &MockDriver{}
	d.root = &MockNode{Tag: "body", Attrs: map[string]string{}, id: "root"}
	return d
}

// Body returns the document root
func (d *MockDriver) Body() *MockNode { return d.root }

// Node creates a detached node with a fresh identifier
func (d *MockDriver) Node(tag string, attrs map[string]string) *MockNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.newNode(strconv.Itoa(d.nextID), tag, attrs)
}

// NodeWithID creates a detached node reusing id, the way a renderer recycles
// identifiers of virtualized nodes
func (d *MockDriver) NodeWithID(id, tag string, attrs map[string]string) *MockNode {
	return d.newNode(id, tag, attrs)
}

func (d *MockDriver) newNode(id, tag string, attrs map[string]string) *MockNode {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &MockNode{Tag: tag, Attrs: copied, id: id}
}

// Append attaches children under parent
func (d *MockDriver) Append(parent *MockNode, children ...*MockNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range children {
		c.parent = parent
		parent.children = append(parent.children, c)
	}
}

// Remove detaches n and its subtree from the document
func (d *MockDriver) Remove(n *MockNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// SetAttr changes an attribute on n
func (d *MockDriver) SetAttr(n *MockNode, name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n.Attrs[name] = value
}

// Attached reports whether n is part of the document
func (d *MockDriver) Attached(n *MockNode) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached(n)
}

func (d *MockDriver) attached(n *MockNode) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

func (d *MockDriver) node(el Element) (*MockNode, error) {
	n, ok := el.(*MockNode)
	if !ok {
		return nil, fmt.Errorf("mock: foreign element %T", el)
	}
	if !d.attached(n) {
		return nil, fmt.Errorf("mock: node %s: %w", n.id, ErrStale)
	}
	return n, nil
}

func (d *MockDriver) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed {
		return errors.New("mock: driver closed")
	}
	return nil
}

func (d *MockDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(ctx); err != nil {
		return err
	}
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.visited = append(d.visited, url)
	return nil
}

func (d *MockDriver) InjectCookie(ctx context.Context, c Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(ctx); err != nil {
		return err
	}
	if d.CookieErr != nil {
		return d.CookieErr
	}
	d.cookies = append(d.cookies, c)
	return nil
}

func (d *MockDriver) ScrollBy(ctx context.Context, px int) error {
	d.mu.Lock()
	if err := d.checkOpen(ctx); err != nil {
		d.mu.Unlock()
		return err
	}
	d.offset += px
	offset := d.offset
	hook := d.OnScroll
	d.mu.Unlock()

	if hook != nil {
		hook(d, offset)
	}
	return nil
}

func (d *MockDriver) ScrollOffset(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(ctx); err != nil {
		return 0, err
	}
	return d.offset, nil
}

func (d *MockDriver) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	return d.find(ctx, d.root, sel)
}

func (d *MockDriver) FindAllWithin(ctx context.Context, parent Element, sel Selector) ([]Element, error) {
	d.mu.Lock()
	n, err := d.node(parent)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.find(ctx, n, sel)
}

func (d *MockDriver) find(ctx context.Context, scope *MockNode, sel Selector) ([]Element, error) {
	if d.FindErr != nil {
		if err := d.FindErr(sel); err != nil {
			return nil, err
		}
	}
	match, err := compileSelector(sel)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(ctx); err != nil {
		return nil, err
	}

	var out []Element
	var walk func(n *MockNode)
	walk = func(n *MockNode) {
		for _, c := range n.children {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(scope)
	return out, nil
}

func (d *MockDriver) Click(ctx context.Context, el Element) error {
	d.mu.Lock()
	if err := d.checkOpen(ctx); err != nil {
		d.mu.Unlock()
		return err
	}
	n, err := d.node(el)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.clicks = append(d.clicks, n.id)
	hook := n.OnClick
	d.mu.Unlock()

	if hook != nil {
		return hook(d)
	}
	return nil
}

func (d *MockDriver) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(ctx); err != nil {
		return "", false, err
	}
	n, err := d.node(el)
	if err != nil {
		return "", false, err
	}
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (d *MockDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called
func (d *MockDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Visited returns every navigated URL in order
func (d *MockDriver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

// Cookies returns the injected cookies
func (d *MockDriver) Cookies() []Cookie {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Cookie(nil), d.cookies...)
}

// Clicks returns the ids of clicked nodes in order
func (d *MockDriver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

var _ Driver = (*MockDriver)(nil)
