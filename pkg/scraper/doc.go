// Package scraper runs a complete media timeline scrape for one user.
//
// A run goes through four stages, each announced on the configured
// discovery.EventSink:
//
//   - login: start a browser session (rod or chromedp), open the site root,
//     inject the auth_token cookie and open the user's media timeline
//   - discover: scroll the grid and resolve every thumbnail to full-size
//     image URLs (see package discovery)
//   - download: fetch the URLs into image_1.jpg, image_2.jpg ... with
//     retries and rate limiting (see internal/downloader)
//   - done
//
// The discovery result is checkpointed before downloading so that Resume
// can repeat the download phase later without scrolling again. A
// manifest.json describing every file is written next to the images.
//
// Usage:
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := scraper.New(cfg, scraper.WithEvents(ui.NewConsoleSink(os.Stdout, false, false)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := s.Run(ctx)
//
// Cancelling ctx stops discovery at the next check, closes the browser,
// prints the statistics and saves the partial result; the download phase
// is then skipped.
package scraper
