package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"xmediagrab/internal/downloader"
	"xmediagrab/pkg/auth"
	"xmediagrab/pkg/checkpoint"
	"xmediagrab/pkg/config"
	"xmediagrab/pkg/discovery"
	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/extractor"
	"xmediagrab/pkg/locator"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/metadata"
	"xmediagrab/pkg/ratelimit"
	"xmediagrab/pkg/session"
	"xmediagrab/pkg/storage"
	"xmediagrab/pkg/ui"
	"xmediagrab/pkg/xsite"
)

// Scraper runs one user's media timeline end to end: login, discovery,
// checkpoint, download and manifest
type Scraper struct {
	config      *config.Config
	drivers     DriverFactory
	fetcher     downloader.Fetcher
	limiter     ratelimit.Limiter
	credentials *auth.Manager
	events      discovery.EventSink
	notifier    *ui.Notifier
	logger      logger.Logger
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithDriverFactory replaces the browser launcher
func WithDriverFactory(f DriverFactory) Option {
	return func(s *Scraper) { s.drivers = f }
}

// WithFetcher replaces the HTTP image client
func WithFetcher(f downloader.Fetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithLimiter replaces the download rate limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Scraper) { s.limiter = l }
}

// WithCredentials resolves the auth token from stored accounts when the
// configuration carries none
func WithCredentials(m *auth.Manager) Option {
	return func(s *Scraper) { s.credentials = m }
}

// WithEvents sets the progress sink
func WithEvents(sink discovery.EventSink) Option {
	return func(s *Scraper) { s.events = sink }
}

// WithNotifier sets the completion notifier
func WithNotifier(n *ui.Notifier) Option {
	return func(s *Scraper) { s.notifier = n }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// Outcome is everything a run produced
type Outcome struct {
	RunID     string
	User      string
	Discovery discovery.Result
	// Report is nil when the download phase did not run
	Report       *downloader.Report
	OutputDir    string
	ManifestPath string
	Checkpoint   string
}

// New creates a new Scraper instance
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		return nil, errs.Setup("configuration is required", nil)
	}

	s := &Scraper{
		config:  cfg,
		drivers: DefaultDriverFactory,
		events:  discovery.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.notifier == nil {
		n := cfg.Notifications
		s.notifier = ui.NewNotifier(n.Enabled, n.OnComplete, n.OnError)
	}
	if s.fetcher == nil {
		s.fetcher = downloader.NewClient(cfg.Download.Timeout, cfg.Download.UserAgent, s.logger)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	}

	return s, nil
}

// OutputDir returns the destination for a user's images
func (s *Scraper) OutputDir(user string) string {
	if s.config.Output.CreateUserFolders {
		return filepath.Join(s.config.Output.BaseDirectory, xsite.SanitizeHandle(user))
	}
	return s.config.Output.BaseDirectory
}

// Run logs in, scrolls the user's media timeline and downloads what it
// found. On cancellation the partial discovery is checkpointed, the
// download phase is skipped and ctx.Err() is returned with the outcome.
func (s *Scraper) Run(ctx context.Context) (*Outcome, error) {
	// Resolve credentials and validate the target
	if err := s.resolveToken(); err != nil {
		return nil, err
	}
	params, err := s.config.Params()
	if err != nil {
		return nil, errs.Setup("incomplete run configuration", err)
	}
	user := xsite.SanitizeHandle(params.UserID)
	if !xsite.IsValidHandle(user) {
		return nil, errs.Setup(fmt.Sprintf("invalid user handle %q", params.UserID), nil)
	}

	out := &Outcome{RunID: uuid.NewString(), User: user}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id": out.RunID,
		"user":   user,
	})
	log.InfoWithFields("Starting scrape", map[string]interface{}{
		"engine":      s.config.Browser.Engine,
		"headless":    params.Headless,
		"max_scrolls": params.MaxScrolls,
	})

	s.events.OnStage(discovery.StageLogin)
	s.events.OnLog(fmt.Sprintf("Opening @%s with %s", user, s.config.Browser.Engine))

	// Start the browser
	drv, err := s.drivers(ctx, s.config.Browser.Engine, s.sessionOptions(params, log))
	if err != nil {
		return s.fail(out, errs.Setup("failed to start browser", err))
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser session")
		}
	}()

	// Sign in and open the media timeline
	login := session.LoginParams{
		BaseURL:   s.config.X.BaseURL,
		AuthToken: params.AuthToken,
		UserID:    user,
	}
	if err := session.Login(ctx, drv, login, log); err != nil {
		return s.fail(out, err)
	}

	// Scroll and collect image URLs
	result, runErr := discovery.Run(ctx, drv,
		locator.New(drv, s.containerPoll(), log),
		extractor.New(drv, s.extractorOptions(), log),
		s.discoveryOptions(params), s.events, log)
	out.Discovery = result

	// Checkpoint even a partial result
	cp, cpMgr := s.saveDiscovery(out, log)

	if runErr != nil {
		s.events.OnStage(discovery.StageDone)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			log.Warn("Scrape canceled")
			return out, runErr
		}
		return s.fail(out, runErr)
	}

	if s.config.Download.Skip {
		s.events.OnLog("Download skipped")
		s.events.OnStage(discovery.StageDone)
		s.notifier.SendSuccess("Discovery complete", fmt.Sprintf("%d image URLs found for @%s", len(result.URLs), user))
		return out, nil
	}

	// Download everything found
	s.download(ctx, out, s.config.Output.OverwriteExisting, cp, cpMgr, log)
	s.events.OnStage(discovery.StageDone)
	s.finish(out)

	return out, nil
}

// Resume repeats the download phase from the last checkpoint of user
// without overwriting files already on disk, so numbering is preserved
func (s *Scraper) Resume(ctx context.Context, user string) (*Outcome, error) {
	user = xsite.SanitizeHandle(user)
	if !xsite.IsValidHandle(user) {
		return nil, errs.Setup(fmt.Sprintf("invalid user handle %q", user), nil)
	}

	mgr, err := checkpoint.NewManager(s.config.Checkpoint.Directory, user, s.logger)
	if err != nil {
		return nil, errs.Setup("failed to open checkpoint", err)
	}
	cp, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("no checkpoint for @%s, run scrape first", user))
	}

	out := &Outcome{
		RunID:      cp.RunID,
		User:       user,
		Discovery:  discovery.Result{URLs: cp.URLs, Stats: cp.Stats, Reason: cp.Reason},
		Checkpoint: mgr.Path(),
	}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id": out.RunID,
		"user":   user,
	})
	log.InfoWithFields("Resuming downloads from checkpoint", map[string]interface{}{
		"urls":     len(cp.URLs),
		"pending":  len(cp.Pending()),
		"complete": cp.Complete,
	})
	if !cp.Complete {
		s.events.OnLog("Checkpoint comes from an interrupted discovery; downloading what was found")
	}

	s.download(ctx, out, false, cp, mgr, log)
	s.events.OnStage(discovery.StageDone)
	s.finish(out)

	return out, nil
}

func (s *Scraper) download(ctx context.Context, out *Outcome, overwrite bool, cp *checkpoint.Checkpoint, cpMgr *checkpoint.Manager, log logger.Logger) {
	out.OutputDir = s.OutputDir(out.User)

	opts := downloader.Options{
		Workers:           s.config.Download.ConcurrentDownloads,
		RetryAttempts:     s.config.Download.RetryAttempts,
		RetryDelay:        s.config.RateLimit.RetryDelay,
		BackoffMultiplier: s.config.RateLimit.BackoffMultiplier,
		PreferOriginal:    s.config.Download.PreferOriginal,
		FileNamePattern:   s.config.Output.FileNamePattern,
		OverwriteExisting: overwrite,
	}
	// Run the worker pool
	report := downloader.New(s.fetcher, s.limiter, opts, s.events, log).Download(ctx, out.Discovery.URLs, out.OutputDir)
	out.Report = &report

	// Record saved indices in the checkpoint
	if cp != nil && cpMgr != nil {
		saved := make(map[int]string)
		for _, f := range report.Files {
			if f.Status != downloader.StatusFailed {
				saved[f.Index] = f.Name
			}
		}
		if err := cpMgr.RecordDownloads(cp, out.OutputDir, saved); err != nil {
			log.WithError(err).Warn("Failed to record downloads in checkpoint")
		}
	}

	// Write manifest
	if s.config.Output.WriteManifest && len(report.Files) > 0 {
		path, err := s.writeManifest(out, report)
		if err != nil {
			log.WithError(err).Warn("Failed to write manifest")
			return
		}
		out.ManifestPath = path
	}
}

// saveDiscovery checkpoints the discovery result. Failures are logged only.
func (s *Scraper) saveDiscovery(out *Outcome, log logger.Logger) (*checkpoint.Checkpoint, *checkpoint.Manager) {
	if !s.config.Checkpoint.Enabled {
		return nil, nil
	}

	mgr, err := checkpoint.NewManager(s.config.Checkpoint.Directory, out.User, log)
	if err != nil {
		log.WithError(err).Warn("Checkpointing disabled for this run")
		return nil, nil
	}
	cp, err := mgr.Create(out.RunID, out.User)
	if err != nil {
		log.WithError(err).Warn("Failed to create checkpoint")
		return nil, nil
	}
	if err := mgr.RecordDiscovery(cp, out.Discovery); err != nil {
		log.WithError(err).Warn("Failed to save discovery checkpoint")
		return nil, nil
	}
	out.Checkpoint = mgr.Path()
	return cp, mgr
}

func (s *Scraper) writeManifest(out *Outcome, report downloader.Report) (string, error) {
	manifest := BuildManifest(out.RunID, out.User, out.Discovery.Stats, report)
	data, err := manifest.Marshal()
	if err != nil {
		return "", err
	}

	store, err := storage.NewManager(out.OutputDir, s.config.Output.FileNamePattern, true)
	if err != nil {
		return "", err
	}
	if err := store.WriteFile(metadata.FileName, data); err != nil {
		return "", err
	}
	return store.Path(metadata.FileName), nil
}

// BuildManifest converts a download report into a manifest
func BuildManifest(runID, user string, stats discovery.Stats, report downloader.Report) *metadata.Manifest {
	m := &metadata.Manifest{
		RunID:      runID,
		User:       user,
		CreatedAt:  time.Now().UTC(),
		Stats:      stats,
		Downloaded: report.Downloaded,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Files:      make([]metadata.FileEntry, 0, len(report.Files)),
	}
	for _, f := range report.Files {
		entry := metadata.FileEntry{
			Index:     f.Index,
			URL:       f.URL,
			SourceURL: f.SourceURL,
			Name:      f.Name,
			Status:    string(f.Status),
			FileSize:  f.Size,
			Width:     f.Width,
			Height:    f.Height,
		}
		if f.SourceURL == f.URL {
			entry.SourceURL = ""
		}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		if f.Status == downloader.StatusDownloaded {
			entry.DownloadedAt = time.Now().UTC()
		}
		m.Files = append(m.Files, entry)
	}
	return m
}

func (s *Scraper) finish(out *Outcome) {
	if out.Report == nil {
		return
	}
	r := out.Report
	msg := fmt.Sprintf("@%s: %d saved, %d skipped, %d failed", out.User, r.Downloaded, r.Skipped, r.Failed)
	if r.Failed > 0 && r.Downloaded == 0 && r.Skipped == 0 {
		s.notifier.SendError("Download failed", msg)
		return
	}
	s.notifier.SendSuccess("Download complete", msg)
}

func (s *Scraper) fail(out *Outcome, err error) (*Outcome, error) {
	s.logger.WithError(err).WithField("user", out.User).Error("Scrape failed")
	s.events.OnLog(fmt.Sprintf("Failed: %v", err))
	s.notifier.SendError("Scrape failed", err.Error())
	return out, err
}

// resolveToken fills the auth token from the credential store
func (s *Scraper) resolveToken() error {
	if s.config.X.AuthToken != "" || s.credentials == nil {
		return nil
	}

	var (
		account *auth.Account
		err     error
	)
	if s.config.X.Account != "" {
		account, err = s.credentials.Retrieve(s.config.X.Account)
	} else {
		account, err = s.credentials.RetrieveDefault()
	}
	if err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, "no auth token configured; run `xmediagrab auth login`", err)
	}

	if !account.MatchesSite(s.config.X.BaseURL) {
		s.logger.WithFields(map[string]interface{}{
			"account": account.Name,
			"domain":  account.Domain,
			"site":    s.config.X.BaseURL,
		}).Warn("Stored token was issued for another domain")
	}
	s.config.X.AuthToken = account.AuthToken
	s.logger.WithField("account", account.Name).Debug("Using stored account")
	return nil
}

func (s *Scraper) sessionOptions(p config.Params, log logger.Logger) session.Options {
	return session.Options{
		Headless:      p.Headless,
		Bin:           s.config.Browser.Bin,
		NoSandbox:     s.config.Browser.NoSandbox,
		UserAgent:     s.config.Browser.UserAgent,
		ControlURL:    s.config.Browser.ControlURL,
		ActionTimeout: s.config.Browser.ActionTimeout,
		Logger:        log,
	}
}

func (s *Scraper) containerPoll() session.Poll {
	return session.Poll{
		Timeout:  s.config.Discovery.ContainerTimeout,
		Interval: s.config.Discovery.PollInterval,
	}
}

func (s *Scraper) extractorOptions() extractor.Options {
	opts := extractor.DefaultOptions()
	d := s.config.Discovery
	if len(s.config.X.ImageAltMarkers) > 0 {
		opts.AltMarkers = s.config.X.ImageAltMarkers
	}
	if len(s.config.X.NextLabels) > 0 {
		opts.NextLabels = s.config.X.NextLabels
	}
	if len(s.config.X.CloseLabels) > 0 {
		opts.CloseLabels = s.config.X.CloseLabels
	}
	if d.OpenTimeout > 0 {
		opts.OpenPoll.Timeout = d.OpenTimeout
	}
	if d.AdvanceTimeout > 0 {
		opts.AdvancePoll.Timeout = d.AdvanceTimeout
	}
	if d.CloseTimeout > 0 {
		opts.CloseTimeout = d.CloseTimeout
	}
	if d.PollInterval > 0 {
		opts.OpenPoll.Interval = d.PollInterval
		opts.AdvancePoll.Interval = d.PollInterval
	}
	return opts
}

func (s *Scraper) discoveryOptions(p config.Params) discovery.Options {
	d := s.config.Discovery
	return discovery.Options{
		MaxScrolls:      p.MaxScrolls,
		StagnationLimit: d.StagnationLimit,
		ScrollStep:      d.ScrollStep,
		SettleDelay:     d.SettleDelay,
		Fragments:       p.Fingerprint,
	}
}
