// Package session abstracts the live browser tab the scraper drives.
//
// Driver exposes navigation, cookie injection, scrolling and raw element
// queries. Elements are opaque handles whose ID is assigned by the browser;
// once the page re-renders a node away every call on it may fail with
// ErrStale, which callers treat as "gone, query again".
//
// Two implementations live in sub-packages: rodsession (go-rod, the default)
// and cdpsession (chromedp). MockDriver is an in-memory document used by the
// tests of every package above this one.
//
// WaitUntil is the only blocking primitive the core uses:
//
//	img, err := session.WaitUntil(ctx, session.Poll{
//		Timeout:  3 * time.Second,
//		Interval: 200 * time.Millisecond,
//	}, func(ctx context.Context) (session.Element, bool, error) {
//		els, err := drv.FindAll(ctx, session.ByCSS(`img[alt="Image"]`))
//		return first(els), len(els) > 0, err
//	})
package session
