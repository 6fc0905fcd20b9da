package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int     // total retry attempts (not counting initial)
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // maximum delay between retries
	BackoffMultiplier float64 // exponential backoff factor
	Jitter            bool    // add random jitter to prevent thundering herd
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default retry policy for model calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// Retry runs fn, repeating it on retryable failures per the policy. The
// initial execution does not count against MaxRetries.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}

		delay, ok := policy.nextDelay(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{ClientError: ClientError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}
	}
}

// nextDelay picks the wait before the next attempt. A rate-limited
// response carrying a Retry-After hint overrides the backoff schedule;
// a hint beyond MaxDelay reports false, since waiting that long is worse
// than surfacing the error.
func (p RetryPolicy) nextDelay(err error, attempt int) (time.Duration, bool) {
	if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
		hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
		if hinted > time.Duration(p.MaxDelay*float64(time.Second)) {
			return 0, false
		}
		return hinted, true
	}
	return p.Delay(attempt), true
}
