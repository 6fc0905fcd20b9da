package llm

import (
	"context"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, expected := range delays {
		got := policy.Delay(i)
		if got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          5.0,
		Jitter:            false,
	}

	// Attempt 10 would be 1024s without cap.
	got := policy.Delay(10)
	if got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            true,
	}

	// With jitter, delay should be within +/- 50% of base delay.
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetrySuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001, Jitter: false}

	callCount := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				ClientError: ClientError{Message: "server error"}, Retryable: true,
			}}
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected %q, got %q", "success", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001, Jitter: false}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &AuthenticationError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "bad key"},
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*AuthenticationError); !ok {
		t.Errorf("expected AuthenticationError, got %T", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001, Jitter: false}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "server error"}, Retryable: true,
		}}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial call plus MaxRetries retries.
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 10.0, BackoffMultiplier: 2, MaxDelay: 60.0, Jitter: false}

	retryAfter := 0.01
	callCount := 0
	start := time.Now()
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount == 1 {
			return "", &RateLimitError{ProviderError: ProviderError{
				ClientError: ClientError{Message: "rate limited"},
				Retryable:   true,
				RetryAfter:  &retryAfter,
			}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected %q, got %q", "ok", result)
	}
	// Retry-After of 10ms should override the 10s base delay.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("retry-after not honored, waited %v", elapsed)
	}
}

func TestRetryRejectsExcessiveRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 1.0, Jitter: false}

	retryAfter := 3600.0
	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &RateLimitError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "rate limited"},
			Retryable:   true,
			RetryAfter:  &retryAfter,
		}}
	})
	if err == nil {
		t.Fatal("expected error when retry-after exceeds max delay")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetryReportsEachAttempt(t *testing.T) {
	var reported []int
	policy := RetryPolicy{
		MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001, Jitter: false,
		OnRetry: func(err error, attempt int, delay time.Duration) {
			if err == nil {
				t.Error("OnRetry called without an error")
			}
			reported = append(reported, attempt)
		},
	}

	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		return "", &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "server error"}, Retryable: true,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(reported) != 2 || reported[0] != 1 || reported[1] != 2 {
		t.Errorf("expected attempts [1 2] reported, got %v", reported)
	}
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 5.0, BackoffMultiplier: 2, MaxDelay: 60.0, Jitter: false}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "server error"}, Retryable: true,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*AbortError); !ok {
		t.Errorf("expected AbortError, got %T: %v", err, err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before abort, got %d", callCount)
	}
}
