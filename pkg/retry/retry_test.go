package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0,
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No attempt"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
		{6, 1 * time.Second, "Sixth attempt (still capped)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			if delay := backoff.NextDelay(test.attempt); delay != test.expected {
				t.Errorf("Expected delay %v, got %v", test.expected, delay)
			}
		})
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Fatalf("Delay %v outside jitter window", delay)
		}
		delays[delay] = true
	}

	if len(delays) < 2 {
		t.Error("Expected multiple different delays with jitter, but got consistent delays")
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := &LinearBackoff{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Increment: 100 * time.Millisecond,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{5, 500 * time.Millisecond},
		{6, 500 * time.Millisecond},
	}

	for _, test := range tests {
		if delay := backoff.NextDelay(test.attempt); delay != test.expected {
			t.Errorf("Attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestRetryWithSuccess(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
		Logger:      logger.NewNopLogger(),
	}

	if err := Do(context.Background(), op, cfg); err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	var retries []int
	op := func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}

	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retries = append(retries, attempt)
		},
	}

	err := Do(context.Background(), op, cfg)
	if err == nil {
		t.Fatal("Expected error when max attempts exceeded")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	// no sleep after the final attempt
	if len(retries) != 2 {
		t.Errorf("Expected 2 retry callbacks, got %v", retries)
	}
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	authError := errs.FromStatus(401, "authentication required")

	op := func(ctx context.Context) error {
		attempts++
		return authError
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		RetryIf:     DefaultRetryIf,
	}

	err := Do(context.Background(), op, cfg)
	if err != authError {
		t.Errorf("Expected auth error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for auth error), got %d", attempts)
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	op := func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 100 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
	}

	err := Do(ctx, op, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestBackoffForErrorType(t *testing.T) {
	etb := NewErrorTypeBackoff(time.Second, 2)

	network := etb.For(errs.New(errs.ErrorTypeNetwork, "reset"))
	if eb, ok := network.(*ExponentialBackoff); !ok || eb.BaseDelay != time.Second {
		t.Errorf("Expected 1s network backoff, got %#v", network)
	}

	rateLimited := etb.For(errs.FromStatus(429, "slow down"))
	if eb, ok := rateLimited.(*ExponentialBackoff); !ok || eb.BaseDelay != 5*time.Second {
		t.Errorf("Expected 5s rate limit backoff, got %#v", rateLimited)
	}

	if etb.For(errors.New("plain")) != etb.DefaultBackoff {
		t.Error("Expected default backoff for untyped errors")
	}
}

func TestDoUsesBackoffFor(t *testing.T) {
	var delays []time.Duration
	cfg := &Config{
		MaxAttempts: 2,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		BackoffFor: func(err error) BackoffStrategy {
			return &ConstantBackoff{Delay: time.Millisecond}
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_ = Do(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}, cfg)

	if len(delays) != 1 || delays[0] != time.Millisecond {
		t.Errorf("Expected one 1ms delay, got %v", delays)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary error")
		}
		return "success", nil
	}

	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
	}

	result, err := DoWithResult(context.Background(), op, cfg)
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got '%s'", result)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Expected nil for zero delay, got %v", err)
	}
}
