package provider

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures bounded retry with exponential backoff for
// transport calls.
type RetryPolicy struct {
	MaxRetries        int     // retry attempts after the initial call
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // cap on the delay between retries, seconds
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryPolicy returns the loop's default transport retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the backoff delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// ChatWithRetry calls t.Chat under the policy. Non-retryable errors and
// context cancellation surface immediately; otherwise the last error is
// returned once the budget is exhausted.
func ChatWithRetry(ctx context.Context, t Transport, policy RetryPolicy, systemPrompt string, history []Message) (string, error) {
	reply, err := t.Chat(ctx, systemPrompt, history)
	if err == nil {
		return reply, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return "", err
		}

		delay := policy.Delay(attempt)
		slog.Warn("Transport call failed, retrying",
			"attempt", attempt+1, "max", policy.MaxRetries, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", &TransportError{Op: "chat", Err: ctx.Err()}
		case <-time.After(delay):
		}

		reply, err = t.Chat(ctx, systemPrompt, history)
		if err == nil {
			return reply, nil
		}
	}

	return "", err
}
