package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
)

func TestWaitUntil(t *testing.T) {
	ctx := context.Background()

	t.Run("returns first success", func(t *testing.T) {
		calls := 0
		v, err := WaitUntil(ctx, Poll{Timeout: time.Second, Interval: time.Millisecond}, func(context.Context) (string, bool, error) {
			calls++
			return "found", calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "found", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("stale errors keep polling", func(t *testing.T) {
		calls := 0
		v, err := WaitUntil(ctx, Poll{Timeout: time.Second, Interval: time.Millisecond}, func(context.Context) (int, bool, error) {
			calls++
			if calls < 2 {
				return 0, false, fmt.Errorf("node 7: %w", ErrStale)
			}
			return 42, true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("other errors stop immediately", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		_, err := WaitUntil(ctx, Poll{Timeout: time.Second, Interval: time.Millisecond}, func(context.Context) (int, bool, error) {
			calls++
			return 0, false, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("extra attempts after timeout", func(t *testing.T) {
		calls := 0
		p := Poll{Timeout: 5 * time.Millisecond, Interval: time.Millisecond, ExtraAttempts: 3, ExtraInterval: time.Millisecond}
		start := time.Now()
		_, err := WaitUntil(ctx, p, func(context.Context) (int, bool, error) {
			calls++
			return 0, false, nil
		})
		assert.ErrorIs(t, err, ErrWaitTimeout)
		assert.True(t, IsTimeout(err))
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
		assert.GreaterOrEqual(t, calls, 4)
	})

	t.Run("extra attempt can succeed", func(t *testing.T) {
		calls := 0
		p := Poll{Timeout: 0, Interval: time.Millisecond, ExtraAttempts: 2, ExtraInterval: time.Millisecond}
		v, err := WaitUntil(ctx, p, func(context.Context) (string, bool, error) {
			calls++
			return "late", calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "late", v)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := WaitUntil(cctx, Poll{Timeout: time.Hour}, func(context.Context) (int, bool, error) {
			t.Fatal("predicate must not run")
			return 0, false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Next slide", "'Next slide'"},
		{"", "''"},
		{"Don't", `"Don't"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `concat('it', "'", 's "x"')`},
		{`'"`, `concat("'", '"')`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, XPathLiteral(tt.in))
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("navigates, injects cookie, opens media page", func(t *testing.T) {
		drv := NewMockDriver()
		tl := logger.NewTestLogger()

		err := Login(context.Background(), drv, LoginParams{
			BaseURL:   "https://x.com/",
			AuthToken: "tok",
			UserID:    "nasa",
		}, tl)
		require.NoError(t, err)

		assert.Equal(t, []string{"https://x.com/", "https://x.com/nasa/media"}, drv.Visited())
		require.Len(t, drv.Cookies(), 1)
		assert.Equal(t, Cookie{
			Name: "auth_token", Value: "tok", Domain: ".x.com", Path: "/", Secure: true, HTTPOnly: true,
		}, drv.Cookies()[0])
		assert.True(t, tl.HasMessage("Opened media timeline"))
	})

	t.Run("rejected cookie is a setup error", func(t *testing.T) {
		drv := NewMockDriver()
		drv.CookieErr = errors.New("invalid domain")

		err := Login(context.Background(), drv, LoginParams{AuthToken: "tok", UserID: "nasa"}, nil)
		require.Error(t, err)
		assert.True(t, errs.IsSetup(err))
		assert.Contains(t, err.Error(), "invalid domain")
		assert.Len(t, drv.Visited(), 1)
	})

	t.Run("navigation failure is a setup error", func(t *testing.T) {
		drv := NewMockDriver()
		drv.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

		err := Login(context.Background(), drv, LoginParams{AuthToken: "tok", UserID: "nasa"}, nil)
		assert.True(t, errs.IsSetup(err))
		assert.Empty(t, drv.Cookies())
	})

	t.Run("missing credentials", func(t *testing.T) {
		drv := NewMockDriver()
		assert.True(t, errs.IsSetup(Login(context.Background(), drv, LoginParams{UserID: "nasa"}, nil)))
		assert.True(t, errs.IsSetup(Login(context.Background(), drv, LoginParams{AuthToken: "t"}, nil)))
		assert.Empty(t, drv.Visited())
	})
}

func TestMockSelectors(t *testing.T) {
	drv := NewMockDriver()
	ctx := context.Background()

	container := drv.Node("div", map[string]string{"class": "css-175oi2r r-18u37iz r-9aw3ui r-1x0uki6"})
	other := drv.Node("div", map[string]string{"class": "css-175oi2r r-18u37iz"})
	thumb := drv.Node("img", map[string]string{"src": "https://pbs.twimg.com/media/A1?format=jpg&name=small", "alt": "Image"})
	avatar := drv.Node("img", map[string]string{"src": "https://pbs.twimg.com/profile_images/1/x.jpg"})
	next := drv.Node("button", map[string]string{"aria-label": "下一张幻灯片"})
	drv.Append(container, thumb, avatar)
	drv.Append(drv.Body(), container, other, next)

	tests := []struct {
		name string
		sel  Selector
		want []Element
	}{
		{"xpath and", ByXPath("//div[contains(@class, 'r-18u37iz') and contains(@class, 'r-9aw3ui')]"), []Element{container}},
		{"xpath or", ByXPath(`//button[@aria-label="Next slide" or @aria-label="下一张幻灯片"]`), []Element{next}},
		{"css contains", ByCSS(`img[src*="media/"]`), []Element{thumb}},
		{"css equals", ByCSS(`img[alt="Image"]`), []Element{thumb}},
		{"css presence", ByCSS(`[aria-label]`), []Element{next}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := drv.FindAll(ctx, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("within scope", func(t *testing.T) {
		got, err := drv.FindAllWithin(ctx, other, ByCSS(`img[src*="media/"]`))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unsupported selector", func(t *testing.T) {
		_, err := drv.FindAll(ctx, ByCSS("div > img"))
		assert.Error(t, err)
	})
}

func TestMockStaleAfterRemove(t *testing.T) {
	drv := NewMockDriver()
	ctx := context.Background()

	n := drv.Node("img", map[string]string{"src": "a"})
	drv.Append(drv.Body(), n)

	v, ok, err := drv.Attribute(ctx, n, "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok, err = drv.Attribute(ctx, n, "alt")
	require.NoError(t, err)
	assert.False(t, ok)

	drv.Remove(n)
	_, _, err = drv.Attribute(ctx, n, "src")
	assert.True(t, IsStale(err))
	assert.True(t, IsStale(drv.Click(ctx, n)))
}

func TestMockCarousel(t *testing.T) {
	drv := NewMockDriver()
	ctx := context.Background()

	thumb := drv.Node("img", map[string]string{"src": "https://pbs.twimg.com/media/t?name=small"})
	drv.Append(drv.Body(), thumb)
	view := drv.AttachCarousel(thumb, MockCarousel{Pages: []string{"a", "b"}})

	require.NoError(t, drv.Click(ctx, thumb))
	assert.True(t, view.IsOpen())

	next, err := drv.FindAll(ctx, ByCSS(`button[aria-label="Next slide"]`))
	require.NoError(t, err)
	require.Len(t, next, 1)

	imgs, err := drv.FindAll(ctx, ByCSS(`div[aria-modal="true"]`))
	require.NoError(t, err)
	require.Len(t, imgs, 1)

	require.NoError(t, drv.Click(ctx, next[0]))
	require.NoError(t, drv.Click(ctx, next[0]))
	inner, err := drv.FindAllWithin(ctx, imgs[0], ByCSS("img"))
	require.NoError(t, err)
	src, _, err := drv.Attribute(ctx, inner[0], "src")
	require.NoError(t, err)
	assert.Equal(t, "a", src, "carousel wraps around")

	closeBtn, err := drv.FindAll(ctx, ByCSS(`button[aria-label="Close"]`))
	require.NoError(t, err)
	require.NoError(t, drv.Click(ctx, closeBtn[0]))
	assert.False(t, view.IsOpen())
	assert.Equal(t, 1, view.Opens())
}
