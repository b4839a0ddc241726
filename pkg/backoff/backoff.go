package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Schedule is the ordered list of delays inserted between successive retry
// attempts. Attempts past the end of the schedule reuse the final delay.
type Schedule []time.Duration

// DelayFor returns the delay to wait after the given failed attempt
// (1-based): schedule[min(attempt-1, len-1)].
func (s Schedule) DelayFor(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}

// Sleep blocks for d or until the context is cancelled, whichever comes
// first. Returns the context's error on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Jitter spreads a delay by ±factor to avoid thundering retries against a
// recovering provider.
func Jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	delta := int64(float64(d) * factor)
	if delta <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*delta)-delta)
}
