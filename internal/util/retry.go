// ABOUTME: Retry backoff for embedding and generation calls
// ABOUTME: Computes jittered exponential delays and waits for them under a context
package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// MaxBackoff caps a single retry delay before jitter
const MaxBackoff = 30 * time.Second

// CalculateBackoff returns baseDelay doubled per attempt, capped at
// MaxBackoff, with up to 25% jitter either way. Attempt 0 or less waits 0.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	attempt = min(attempt, 30)

	backoff := MaxBackoff
	if baseDelay <= MaxBackoff>>uint(attempt) {
		backoff = baseDelay << uint(attempt)
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}

// Backoff sleeps for CalculateBackoff(baseDelay, attempt). It returns
// ctx.Err() as soon as ctx is done.
func Backoff(ctx context.Context, baseDelay time.Duration, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := CalculateBackoff(baseDelay, attempt)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
