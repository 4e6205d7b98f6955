package session

import (
	"context"
	"errors"
	"time"

	"xmediagrab/pkg/retry"
)

const defaultInterval = 100 * time.Millisecond

// Poll bounds a polling wait. The predicate runs every Interval until
// Timeout elapses, then ExtraAttempts more times ExtraInterval apart.
type Poll struct {
	Timeout       time.Duration
	Interval      time.Duration
	ExtraAttempts int
	ExtraInterval time.Duration
}

// WaitUntil polls fn until it reports done. Stale element errors count as
// "not yet"; any other error ends the wait and is returned as is. When the
// budget is spent ErrWaitTimeout is returned.
func WaitUntil[T any](ctx context.Context, p Poll, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}

	check := func() (T, bool, error) {
		v, ok, err := fn(ctx)
		if err != nil {
			if IsStale(err) {
				return zero, false, nil
			}
			return zero, false, err
		}
		return v, ok, nil
	}

	deadline := time.Now().Add(p.Timeout)
	interval := &retry.ConstantBackoff{Delay: p.Interval}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, ok, err := check()
		if err != nil || ok {
			return v, err
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := retry.Wait(ctx, interval.NextDelay(attempt)); err != nil {
			return zero, err
		}
	}

	for i := 0; i < p.ExtraAttempts; i++ {
		if err := retry.Wait(ctx, p.ExtraInterval); err != nil {
			return zero, err
		}
		v, ok, err := check()
		if err != nil || ok {
			return v, err
		}
	}

	return zero, ErrWaitTimeout
}

// IsTimeout reports whether err is a WaitUntil timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrWaitTimeout)
}
