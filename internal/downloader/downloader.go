package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"time"

	"xmediagrab/pkg/discovery"
	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/ratelimit"
	"xmediagrab/pkg/retry"
	"xmediagrab/pkg/storage"
	"xmediagrab/pkg/xsite"
)

// Status is the outcome of one file
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// FileResult describes what happened to one URL
type FileResult struct {
	Index     int
	URL       string
	SourceURL string
	Name      string
	Path      string
	Size      int64
	Width     int
	Height    int
	Status    Status
	Err       error
	Duration  time.Duration
}

// Report summarizes a download run. Files are ordered by index.
type Report struct {
	Dir        string
	Files      []FileResult
	Downloaded int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

// Options configures a Sink
type Options struct {
	Workers           int
	RetryAttempts     int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	PreferOriginal    bool
	FileNamePattern   string
	OverwriteExisting bool
}

// DefaultOptions returns three workers and three attempts starting at 1s
func DefaultOptions() Options {
	return Options{
		Workers:           3,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2,
		FileNamePattern:   storage.DefaultPattern,
		OverwriteExisting: true,
	}
}

// Sink saves discovered image URLs to disk. It never fails as a whole:
// every problem is recorded per file and logged.
type Sink struct {
	fetcher Fetcher
	limiter ratelimit.Limiter
	opts    Options
	events  discovery.EventSink
	log     logger.Logger
}

// New creates a Sink. A nil limiter means unlimited, a nil events sink
// drops progress.
func New(fetcher Fetcher, limiter ratelimit.Limiter, opts Options, events discovery.EventSink, log logger.Logger) *Sink {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if events == nil {
		events = discovery.NopSink{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	return &Sink{
		fetcher: fetcher,
		limiter: limiter,
		opts:    opts,
		events:  events,
		log:     log.WithField("component", "downloader"),
	}
}

// Download fetches urls into dir as image_1.ext, image_2.ext ... in the
// order given, whatever order the workers finish in. Files not attempted
// because ctx ended are reported as failed with the context error.
func (s *Sink) Download(ctx context.Context, urls []string, dir string) Report {
	start := time.Now()
	report := Report{Dir: dir}
	s.events.OnStage(discovery.StageDownload)
	s.events.OnProgress(discovery.DownloadPercent(0, len(urls)))

	if len(urls) == 0 {
		s.events.OnLog("Nothing to download")
		return report
	}

	mgr, err := storage.NewManager(dir, s.opts.FileNamePattern, s.opts.OverwriteExisting)
	if err != nil {
		s.log.WithError(err).Error("Cannot prepare destination")
		s.events.OnLog(fmt.Sprintf("Cannot prepare %s: %v", dir, err))
		for i, u := range urls {
			report.Files = append(report.Files, FileResult{Index: i + 1, URL: u, Status: StatusFailed, Err: err})
		}
		report.Failed = len(urls)
		report.Duration = time.Since(start)
		return report
	}

	s.events.OnLog(fmt.Sprintf("Downloading %d images to %s", len(urls), dir))

	pool := NewWorkerPool(ctx, s.opts.Workers, func(ctx context.Context, job Job) FileResult {
		return s.process(ctx, mgr, job)
	}, s.log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, u := range urls {
			if err := pool.Submit(Job{Index: i + 1, URL: u}); err != nil {
				return
			}
		}
	}()

	byIndex := make(map[int]FileResult, len(urls))
	for res := range pool.Results() {
		byIndex[res.Index] = res
		s.events.OnProgress(discovery.DownloadPercent(len(byIndex), len(urls)))
		switch res.Status {
		case StatusDownloaded:
			s.events.OnLog(fmt.Sprintf("Saved %s", res.Name))
		case StatusSkipped:
			s.events.OnLog(fmt.Sprintf("Skipped %s (exists)", res.Name))
		case StatusFailed:
			s.events.OnLog(fmt.Sprintf("Failed image %d: %v", res.Index, res.Err))
		}
	}

	for i, u := range urls {
		res, ok := byIndex[i+1]
		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("not attempted")
			}
			res = FileResult{Index: i + 1, URL: u, Status: StatusFailed, Err: cause}
		}
		report.Files = append(report.Files, res)
	}
	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Index < report.Files[j].Index })

	for _, f := range report.Files {
		switch f.Status {
		case StatusDownloaded:
			report.Downloaded++
		case StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	report.Duration = time.Since(start)

	s.events.OnLog(fmt.Sprintf("Download finished: %d saved, %d skipped, %d failed", report.Downloaded, report.Skipped, report.Failed))
	s.log.WithFields(map[string]interface{}{
		"dir":        dir,
		"downloaded": report.Downloaded,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"duration":   report.Duration,
	}).Info("Download finished")

	return report
}

func (s *Sink) process(ctx context.Context, mgr *storage.Manager, job Job) (res FileResult) {
	start := time.Now()
	res = FileResult{Index: job.Index, URL: job.URL, SourceURL: job.URL}
	if s.opts.PreferOriginal {
		res.SourceURL = xsite.OriginalURL(job.URL)
	}
	res.Name = mgr.FileName(job.Index, xsite.Extension(job.URL))
	res.Path = mgr.Path(res.Name)

	defer func() {
		res.Duration = time.Since(start)
		if res.Status == StatusSkipped {
			s.log.WithField("path", res.Path).Debug("Skipped existing file")
			return
		}
		logger.LogDownload(s.log, res.Index, res.SourceURL, res.Path, res.Err)
	}()

	// Check if already downloaded
	if mgr.ShouldSkip(res.Name) {
		res.Status = StatusSkipped
		return res
	}

	// Download the image
	data, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		// Wait for rate limit
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return s.fetcher.Fetch(ctx, res.SourceURL)
	}, s.retryConfig())
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	// Save the image
	n, err := mgr.Save(bytes.NewReader(data), res.Name)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	res.Size = n
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		res.Width, res.Height = cfg.Width, cfg.Height
	}
	res.Status = StatusDownloaded
	return res
}

func (s *Sink) retryConfig() *retry.Config {
	multiplier := s.opts.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2
	}
	backoff := retry.NewErrorTypeBackoff(s.opts.RetryDelay, multiplier)
	return &retry.Config{
		MaxAttempts: s.opts.RetryAttempts,
		Backoff:     backoff.DefaultBackoff,
		BackoffFor:  backoff.For,
		RetryIf:     retryable,
		Logger:      s.log,
	}
}

// retryable retries network errors and 429/5xx gateway statuses only
func retryable(err error) bool {
	var typed *errs.Error
	if errors.As(err, &typed) && typed.Code != 0 {
		return errs.IsRetryableStatusCode(typed.Code)
	}
	return retry.DefaultRetryIf(err)
}
