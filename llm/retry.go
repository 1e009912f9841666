package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy configures capped exponential backoff for transient backend
// errors. Delay for attempt n (0-indexed) is min(InitialDelay*2^n, MaxDelay).
type RetryPolicy struct {
	MaxRetries   int           // retry attempts, not counting the initial call
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff ceiling
	Jitter       bool          // add up to +25% random jitter per delay
	OnRetry      func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default backend retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   8,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Jitter:       true,
	}
}

// Delay returns the backoff delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay > 0 {
		jitterMax := delay / 4
		if jitterMax > time.Second {
			jitterMax = time.Second
		}
		delay += time.Duration(rand.Int63n(int64(jitterMax) + 1))
	}
	return delay
}

// Retry executes fn under the policy. Only transient errors are retried;
// fatal errors surface immediately. When attempts are exhausted the last
// transient error is wrapped as fatal so callers see a single terminal
// error rather than a retryable one.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsTransient(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, FatalErr("retry", "cancelled while backing off", ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	if !IsTransient(err) {
		return zero, err
	}
	return zero, &BackendError{
		Message:    fmt.Sprintf("retries exhausted after %d attempts", policy.MaxRetries+1),
		Provider:   providerOf(err),
		StatusCode: statusOf(err),
		Retryable:  false,
		Cause:      err,
	}
}

func providerOf(err error) string {
	if be, ok := err.(*BackendError); ok {
		return be.Provider
	}
	return ""
}

func statusOf(err error) int {
	if be, ok := err.(*BackendError); ok {
		return be.StatusCode
	}
	return 0
}
