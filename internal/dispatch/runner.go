package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/pkg/backoff"
	"github.com/rentfolio/notification-service/pkg/metrics"
)

// SleepFunc waits out a backoff delay. Injectable so tests can run the
// schedule without wall-clock time.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner executes a task to completion in-process: strictly sequential
// attempts with the policy's delays between them. It owns the attempt
// counter; tasks never see it outside their Run invocation.
type Runner struct {
	policy  Policy
	sleep   SleepFunc
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRunner(policy Policy, logger *slog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{policy: policy, sleep: backoff.Sleep, logger: logger, metrics: m}
}

// WithSleep replaces the delay function. For tests.
func (r *Runner) WithSleep(sleep SleepFunc) *Runner {
	r.sleep = sleep
	return r
}

// Execute drives req's task through the retry schedule and returns the final
// state. The only error it can return alongside a non-terminal state is a
// context cancellation during a backoff wait.
func (r *Runner) Execute(ctx context.Context, task Task, req *models.DeliveryRequest) (models.TaskState, error) {
	if r.metrics != nil {
		r.metrics.Consumed(req.Channel)
	}
	for attempt := 1; ; attempt++ {
		state, err := task.Run(ctx, req, attempt)
		switch state {
		case models.StateSucceeded:
			if r.metrics != nil {
				r.metrics.Delivered(req.Channel)
			}
			return state, nil
		case models.StateTerminallyFailed:
			if r.metrics != nil {
				r.metrics.Failed(req.Channel)
			}
			return state, err
		case models.StateAwaitingRetry:
			if r.metrics != nil {
				r.metrics.Retried(req.Channel)
			}
			if sleepErr := r.sleep(ctx, r.policy.Delay(attempt)); sleepErr != nil {
				return models.StateAwaitingRetry, fmt.Errorf("dispatch interrupted: %w", sleepErr)
			}
		default:
			return state, fmt.Errorf("task returned unexpected state %q", state)
		}
	}
}
