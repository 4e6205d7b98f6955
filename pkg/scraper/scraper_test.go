package scraper

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/internal/downloader"
	"xmediagrab/pkg/auth"
	"xmediagrab/pkg/checkpoint"
	"xmediagrab/pkg/config"
	"xmediagrab/pkg/discovery"
	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/metadata"
	"xmediagrab/pkg/ratelimit"
	"xmediagrab/pkg/session"
	"xmediagrab/pkg/ui"
)

const testToken = "0123456789abcdef0123456789abcdef01234567"

func full(id string) string  { return "https://pbs.twimg.com/media/" + id + "?format=jpg&name=large" }
func small(id string) string { return "https://pbs.twimg.com/media/" + id + "?format=jpg&name=small" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.X.UserID = "someone"
	cfg.X.AuthToken = testToken
	cfg.Discovery.SettleDelay = 0
	cfg.Discovery.ContainerTimeout = 10 * time.Millisecond
	cfg.Discovery.OpenTimeout = 20 * time.Millisecond
	cfg.Discovery.AdvanceTimeout = 20 * time.Millisecond
	cfg.Discovery.CloseTimeout = 20 * time.Millisecond
	cfg.Discovery.PollInterval = 2 * time.Millisecond
	cfg.RateLimit.RetryDelay = time.Millisecond
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Checkpoint.Directory = t.TempDir()
	return cfg
}

// timeline builds a media grid with one single-image post per id
func timeline(ids ...string) *session.MockDriver {
	drv := session.NewMockDriver()
	container := drv.Node("div", map[string]string{"class": "css-175oi2r r-18u37iz r-9aw3ui"})
	for _, id := range ids {
		thumb := drv.Node("img", map[string]string{"src": small(id), "alt": "Image"})
		drv.Append(container, thumb)
		drv.AttachCarousel(thumb, session.MockCarousel{Pages: []string{full(id)}})
	}
	drv.Append(drv.Body(), container)
	return drv
}

type pngFetcher struct {
	mu      sync.Mutex
	fetched []string
	body    []byte
}

func newPNGFetcher(t *testing.T) *pngFetcher {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	return &pngFetcher{body: buf.Bytes()}
}

func (f *pngFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return f.body, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, title)
	return nil
}

func newScraper(t *testing.T, cfg *config.Config, drv session.Driver, extra ...Option) (*Scraper, *discovery.Recorder, *fakeSender) {
	t.Helper()
	rec := &discovery.Recorder{}
	sender := &fakeSender{}
	prev := ui.Output
	ui.Output = &bytes.Buffer{}
	t.Cleanup(func() { ui.Output = prev })

	opts := []Option{
		WithDriverFactory(StaticDriver(drv)),
		WithFetcher(newPNGFetcher(t)),
		WithLimiter(ratelimit.Unlimited{}),
		WithEvents(rec),
		WithNotifier(ui.NewNotifierWithSender(sender, true, true)),
		WithLogger(logger.NewNopLogger()),
	}
	s, err := New(cfg, append(opts, extra...)...)
	require.NoError(t, err)
	return s, rec, sender
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	drv := timeline("a", "b", "c")
	s, rec, sender := newScraper(t, cfg, drv)

	out, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{full("a"), full("b"), full("c")}, out.Discovery.URLs)
	assert.Equal(t, discovery.ReasonStagnation, out.Discovery.Reason)
	require.NotNil(t, out.Report)
	assert.Equal(t, 3, out.Report.Downloaded)

	dir := filepath.Join(cfg.Output.BaseDirectory, "someone")
	assert.Equal(t, dir, out.OutputDir)
	for _, name := range []string{"image_1.jpg", "image_2.jpg", "image_3.jpg"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	manifest, err := metadata.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, out.RunID, manifest.RunID)
	require.Len(t, manifest.Files, 3)
	assert.Equal(t, 4, manifest.Files[0].Width)
	assert.Equal(t, 3, manifest.Files[0].Height)
	assert.Equal(t, filepath.Join(dir, metadata.FileName), out.ManifestPath)

	cp, err := mustCheckpoint(t, cfg).Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.Complete)
	assert.Equal(t, out.Discovery.URLs, cp.URLs)
	assert.Equal(t, 3, cp.TotalDownloaded)
	assert.Empty(t, cp.Pending())

	assert.True(t, drv.Closed())
	assert.Equal(t, []string{"https://x.com/", "https://x.com/someone/media"}, drv.Visited())
	require.Len(t, drv.Cookies(), 1)
	assert.Equal(t, testToken, drv.Cookies()[0].Value)

	assert.Equal(t, []string{
		discovery.StageLogin, discovery.StageDiscover, discovery.StageDownload, discovery.StageDone,
	}, rec.Stages())
	progress := rec.Progress()
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.Equal(t, []string{"Download complete"}, sender.sent)
}

func mustCheckpoint(t *testing.T, cfg *config.Config) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.NewManager(cfg.Checkpoint.Directory, "someone", logger.NewNopLogger())
	require.NoError(t, err)
	return mgr
}

func TestRunRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.X.AuthToken = ""

	started := false
	factory := func(context.Context, string, session.Options) (session.Driver, error) {
		started = true
		return session.NewMockDriver(), nil
	}
	s, _, _ := newScraper(t, cfg, nil, WithDriverFactory(factory))

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsSetup(err))
	assert.False(t, started)
}

func TestRunRejectsBadHandle(t *testing.T) {
	cfg := testConfig(t)
	cfg.X.UserID = "not a handle"
	s, _, _ := newScraper(t, cfg, timeline())

	_, err := s.Run(context.Background())
	assert.True(t, errs.IsSetup(err))
}

func TestRunUsesStoredAccount(t *testing.T) {
	cfg := testConfig(t)
	cfg.X.AuthToken = ""
	cfg.Download.Skip = true

	creds, _ := auth.NewMockManager()
	require.NoError(t, creds.Store(&auth.Account{Name: "main", AuthToken: testToken}))

	drv := timeline("a")
	s, _, _ := newScraper(t, cfg, drv, WithCredentials(creds))

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, drv.Cookies(), 1)
	assert.Equal(t, testToken, drv.Cookies()[0].Value)
}

func TestRunUnknownAccount(t *testing.T) {
	cfg := testConfig(t)
	cfg.X.AuthToken = ""
	cfg.X.Account = "ghost"

	creds, _ := auth.NewMockManager()
	s, _, _ := newScraper(t, cfg, timeline(), WithCredentials(creds))

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
}

func TestRunLoginFailure(t *testing.T) {
	cfg := testConfig(t)
	drv := timeline("a")
	drv.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	s, rec, sender := newScraper(t, cfg, drv)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsSetup(err))
	assert.True(t, drv.Closed(), "session is closed on failure")
	assert.Equal(t, []string{discovery.StageLogin}, rec.Stages())
	assert.Equal(t, []string{"Scrape failed"}, sender.sent)
}

func TestRunBrowserStartFailure(t *testing.T) {
	cfg := testConfig(t)
	factory := func(context.Context, string, session.Options) (session.Driver, error) {
		return nil, errors.New("chrome not found")
	}
	s, _, _ := newScraper(t, cfg, nil, WithDriverFactory(factory))

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsSetup(err))
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestRunSkipDownload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.Skip = true
	s, rec, _ := newScraper(t, cfg, timeline("a", "b"))

	out, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Report)
	assert.Len(t, out.Discovery.URLs, 2)
	assert.NotContains(t, rec.Stages(), discovery.StageDownload)
	assert.NoDirExists(t, filepath.Join(cfg.Output.BaseDirectory, "someone"))

	cp, err := mustCheckpoint(t, cfg).Load()
	require.NoError(t, err)
	assert.Len(t, cp.Pending(), 2)
}

func TestRunCanceledDuringDiscovery(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := timeline("a")
	drv.OnScroll = func(*session.MockDriver, int) { cancel() }
	s, rec, sender := newScraper(t, cfg, drv)

	out, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, discovery.ReasonCanceled, out.Discovery.Reason)
	assert.Equal(t, []string{full("a")}, out.Discovery.URLs)
	assert.Nil(t, out.Report)
	assert.True(t, drv.Closed())
	assert.Len(t, rec.Of(discovery.EventSummary), 1, "summary is printed on cancel")
	assert.Empty(t, sender.sent)

	cp, err := mustCheckpoint(t, cfg).Load()
	require.NoError(t, err)
	assert.False(t, cp.Complete)
	assert.Equal(t, []string{full("a")}, cp.URLs)
}

func TestResumeKeepsExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Download.Skip = true
	first, _, _ := newScraper(t, cfg, timeline("a", "b", "c"))
	discovered, err := first.Run(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(cfg.Output.BaseDirectory, "someone")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_1.jpg"), []byte("kept"), 0644))

	cfg.Download.Skip = false
	fetcher := newPNGFetcher(t)
	second, _, _ := newScraper(t, cfg, nil, WithFetcher(fetcher))
	out, err := second.Resume(context.Background(), "@someone")
	require.NoError(t, err)

	assert.Equal(t, discovered.RunID, out.RunID)
	require.NotNil(t, out.Report)
	assert.Equal(t, 1, out.Report.Skipped)
	assert.Equal(t, 2, out.Report.Downloaded)
	assert.ElementsMatch(t, []string{full("b"), full("c")}, fetcher.fetched)

	kept, err := os.ReadFile(filepath.Join(dir, "image_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(kept))

	cp, err := mustCheckpoint(t, cfg).Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cp.TotalDownloaded)
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newScraper(t, cfg, nil)

	_, err := s.Resume(context.Background(), "someone")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestBuildManifest(t *testing.T) {
	report := downloader.Report{
		Downloaded: 1,
		Failed:     1,
		Files: []downloader.FileResult{
			{Index: 1, URL: full("a"), SourceURL: full("a"), Name: "image_1.jpg", Status: downloader.StatusDownloaded, Size: 10, Width: 4, Height: 3},
			{Index: 2, URL: full("b"), SourceURL: "https://pbs.twimg.com/media/b?format=jpg&name=orig", Name: "image_2.jpg", Status: downloader.StatusFailed, Err: errors.New("status 404")},
		},
	}

	m := BuildManifest("run-1", "someone", discovery.Stats{URLsFound: 2}, report)
	require.Len(t, m.Files, 2)
	assert.Empty(t, m.Files[0].SourceURL)
	assert.False(t, m.Files[0].DownloadedAt.IsZero())
	assert.Equal(t, "status 404", m.Files[1].Error)
	assert.Equal(t, "https://pbs.twimg.com/media/b?format=jpg&name=orig", m.Files[1].SourceURL)
	assert.True(t, m.Files[1].DownloadedAt.IsZero())
	assert.Equal(t, 2, m.Stats.URLsFound)
}

func TestOutputDir(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newScraper(t, cfg, nil)
	assert.Equal(t, filepath.Join(cfg.Output.BaseDirectory, "someone"), s.OutputDir("@someone/"))

	cfg.Output.CreateUserFolders = false
	assert.Equal(t, cfg.Output.BaseDirectory, s.OutputDir("someone"))
}

func TestDefaultDriverFactoryUnknownEngine(t *testing.T) {
	_, err := DefaultDriverFactory(context.Background(), "webkit", session.Options{})
	assert.ErrorContains(t, err, "webkit")
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errs.IsSetup(err))
}
