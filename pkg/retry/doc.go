// Package retry provides backoff strategies and a context-aware retry loop
// for transient failures, chiefly image downloads from the media CDN.
//
// Features:
//   - Exponential, linear and constant backoff strategies
//   - Jitter to avoid synchronized retries
//   - Context support for cancellation
//   - Error-type specific backoff (rate limits wait longer)
//   - Configurable retry predicates
//
// Basic usage:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetch(ctx, url)
//	}, nil)
//
//	cfg := &retry.Config{
//		MaxAttempts: 3,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:  time.Second,
//			MaxDelay:   30 * time.Second,
//			Multiplier: 2.0,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	body, err := retry.DoWithResult(ctx, fetchBody, cfg)
//
// Wait is also used on its own by the browser session's polling helpers.
package retry
