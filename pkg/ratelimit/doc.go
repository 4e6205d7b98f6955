// Package ratelimit throttles image downloads.
//
// Two algorithms are available behind the Limiter interface:
//
//   - TokenBucket: a fixed number of tokens refilled all at once after a
//     period, which bounds bursts
//   - SlidingWindow: at most N requests in any window of the given size
//
// New combines both into a Chain sized from the requests_per_minute and
// burst_size settings. Wait honours context cancellation so an interrupted
// run does not sit out a refill period.
//
//	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
