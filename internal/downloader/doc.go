// Package downloader saves discovered image URLs to a local directory.
//
// Sink.Download fetches every URL through a small worker pool, rate
// limited and retried with backoff on network errors and 429/5xx
// responses. Files are named by discovery order (image_1.jpg,
// image_2.png ...) with the extension taken from the URL's format
// parameter. Failures are recorded per file in the Report; Download itself
// never fails.
package downloader
