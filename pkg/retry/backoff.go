package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "xmediagrab/pkg/errors"
)

// BackoffStrategy computes the delay before a given retry attempt
type BackoffStrategy interface {
	// NextDelay returns the delay before attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier each attempt, capped at MaxDelay
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor spreads each delay by up to this fraction (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff waits 1s, 2s, 4s ... up to a minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := eb.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	// Calculate exponential delay
	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	// Cap at max delay
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	return jitter(delay, eb.JitterFactor)
}

// LinearBackoff adds Increment to the delay each attempt, capped at MaxDelay
type LinearBackoff struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Increment is the amount to increase delay by each attempt
	Increment time.Duration
	// JitterFactor adds randomness (0.0 to 1.0)
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	// Calculate linear delay
	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))

	// Cap at max delay
	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}
	return jitter(delay, lb.JitterFactor)
}

// ConstantBackoff waits the same Delay before every attempt. Browser polling
// uses it for its fixed-interval waits.
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

func jitter(delay, factor float64) time.Duration {
	if factor > 0 {
		// Random value between -jitter and +jitter
		j := delay * factor
		delay += (rand.Float64() * 2 * j) - j
	}

	// Ensure delay is not negative
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorTypeBackoff picks a strategy from the type of the failed attempt's error.
// Rate limited responses back off much longer than dropped connections.
type ErrorTypeBackoff struct {
	// NetworkErrorBackoff for dropped connections and timeouts
	NetworkErrorBackoff BackoffStrategy
	// RateLimitBackoff for 429 responses from the media host
	RateLimitBackoff BackoffStrategy
	// ServerErrorBackoff for 5xx errors
	ServerErrorBackoff BackoffStrategy
	// DefaultBackoff for other retryable errors
	DefaultBackoff BackoffStrategy
}

// NewErrorTypeBackoff builds per-type strategies around base, the delay of
// the first retry.
func NewErrorTypeBackoff(base time.Duration, multiplier float64) *ErrorTypeBackoff {
	if base <= 0 {
		base = time.Second
	}
	return &ErrorTypeBackoff{
		NetworkErrorBackoff: &ExponentialBackoff{
			BaseDelay:    base,
			MaxDelay:     30 * time.Second,
			Multiplier:   multiplier,
			JitterFactor: 0.2,
		},
		RateLimitBackoff: &ExponentialBackoff{
			BaseDelay:    base * 5,
			MaxDelay:     2 * time.Minute,
			Multiplier:   multiplier,
			JitterFactor: 0.3,
		},
		ServerErrorBackoff: &ExponentialBackoff{
			BaseDelay:    base * 2,
			MaxDelay:     60 * time.Second,
			Multiplier:   multiplier,
			JitterFactor: 0.1,
		},
		DefaultBackoff: &ExponentialBackoff{
			BaseDelay:  base,
			MaxDelay:   60 * time.Second,
			Multiplier: multiplier,
		},
	}
}

// For returns the strategy matching err's type
func (etb *ErrorTypeBackoff) For(err error) BackoffStrategy {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeNetwork:
		return etb.NetworkErrorBackoff
	case errs.ErrorTypeRateLimit:
		return etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}
