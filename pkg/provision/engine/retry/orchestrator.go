// Package retry runs a connector call with bounded, fixed-delay retries.
// Every failure is classified; only retryable classifications are attempted again.
package retry

import (
	"context"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// OnRetryFunc is called before each wait, with the attempt that just failed.
type OnRetryFunc func(attempt int, err *exception.BatchError)

// Orchestrator executes operations under a RetryPolicy.
type Orchestrator struct {
	policy RetryPolicy
	wait   func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator for policy.
func NewOrchestrator(policy RetryPolicy) *Orchestrator {
	return &Orchestrator{policy: policy, wait: sleepContext}
}

// Policy returns the orchestrator's policy.
func (o *Orchestrator) Policy() RetryPolicy {
	return o.policy
}

// Execute calls fn until it succeeds, fails terminally or the attempt budget is spent.
// It returns the number of attempts made and, on failure, the final classification.
// Cancellation is observed before every attempt and during every delay.
func (o *Orchestrator) Execute(ctx context.Context, fn func(ctx context.Context) error, onRetry OnRetryFunc) (int, *exception.BatchError) {
	maxAttempts := o.policy.GetMaxAttempts()
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempt, exception.NewBatchError("retry", exception.KindCancelled, "cancelled before attempt", err)
		}

		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}

		classified := exception.Classify(err)
		if !o.policy.ShouldRetry(classified) || attempt >= maxAttempts {
			return attempt, classified
		}

		logger.Debugf("Attempt %d/%d failed with %s, retrying: %s", attempt, maxAttempts, classified.Kind, classified.Message)
		if onRetry != nil {
			onRetry(attempt, classified)
		}

		if werr := o.wait(ctx, o.policy.GetBackoffInterval(attempt)); werr != nil {
			return attempt, exception.NewBatchErrorf("retry", exception.KindCancelled,
				"cancelled while waiting to retry after %s: %s", classified.Kind, classified.Message, werr).
				WithDetail("last_kind", string(classified.Kind))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
