package dispatch

import (
	"time"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/pkg/backoff"
)

// Policy is the bounded-retry policy shared by every channel task.
type Policy struct {
	MaxAttempts int
	Backoff     backoff.Schedule

	// Classify decides whether a failed result is worth another attempt.
	// The default retries transport failures and remote rejections
	// identically: remote outages and transient provider-side rejections are
	// treated the same for simplicity. Override to stop retrying rejections
	// that can never succeed (e.g. invalid recipient).
	Classify func(models.DeliveryResult) bool
}

// DefaultPolicy carries the values used across all channels: three attempts
// with 60s, 300s and 900s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     backoff.Schedule{60 * time.Second, 300 * time.Second, 900 * time.Second},
	}
}

// Delay returns the wait before re-invoking after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Backoff.DelayFor(attempt)
}

// Retryable applies the classification hook.
func (p Policy) Retryable(result models.DeliveryResult) bool {
	if p.Classify == nil {
		return true
	}
	return p.Classify(result)
}
