// Package sessiontest checks a real browser driver against a small local page.
package sessiontest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/pkg/session"
)

// EnvBrowserTests enables tests that start a real browser
const EnvBrowserTests = "XMEDIAGRAB_BROWSER_TESTS"

const page = `<!DOCTYPE html>
<html><body style="height: 6000px; margin: 0">
<div class="css-175oi2r r-18u37iz r-9aw3ui">
  <img src="/media/A1?format=png&name=small" alt="Image" width="50" height="50">
  <img src="/profile_images/1/me.jpg" width="50" height="50">
</div>
<button aria-label="Next slide" style="position: fixed; top: 0; left: 0"
  onclick="this.setAttribute('data-clicked', 'yes')">next</button>
</body></html>`

// SkipUnlessEnabled skips the calling test unless browser tests are enabled
func SkipUnlessEnabled(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv(EnvBrowserTests) == "" {
		t.Skipf("set %s=1 to run browser tests", EnvBrowserTests)
	}
}

// Server serves the conformance page
func Server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// Run exercises every Driver operation against the conformance page
func Run(t *testing.T, drv session.Driver, srv *httptest.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, drv.Navigate(ctx, srv.URL+"/"))

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	require.NoError(t, drv.InjectCookie(ctx, session.Cookie{
		Name: "auth_token", Value: "test", Domain: u.Hostname(), Path: "/",
	}))

	containers, err := drv.FindAll(ctx, session.ByXPath("//div[contains(@class, 'r-18u37iz') and contains(@class, 'r-9aw3ui')]"))
	require.NoError(t, err)
	require.Len(t, containers, 1)

	again, err := drv.FindAll(ctx, session.ByXPath("//div[contains(@class, 'r-9aw3ui')]"))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, containers[0].ID(), again[0].ID(), "ids are stable across queries")

	thumbs, err := drv.FindAllWithin(ctx, containers[0], session.ByCSS(`img[src*="media/"]`))
	require.NoError(t, err)
	require.Len(t, thumbs, 1)

	src, ok, err := drv.Attribute(ctx, thumbs[0], "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/media/A1?format=png&name=small", src)

	_, ok, err = drv.Attribute(ctx, thumbs[0], "data-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	buttons, err := drv.FindAll(ctx, session.ByCSS(`button[aria-label="Next slide"]`))
	require.NoError(t, err)
	require.Len(t, buttons, 1)
	require.NoError(t, drv.Click(ctx, buttons[0]))
	clicked, _, err := drv.Attribute(ctx, buttons[0], "data-clicked")
	require.NoError(t, err)
	assert.Equal(t, "yes", clicked)

	require.NoError(t, drv.ScrollBy(ctx, 500))
	offset, err := drv.ScrollOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, offset)
}
