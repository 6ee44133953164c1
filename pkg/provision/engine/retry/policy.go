package retry

import (
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

// RetryPolicy decides whether a classified failure gets another attempt and how long to wait.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err *exception.BatchError) bool
	// GetBackoffInterval returns the delay before the attempt following attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, the first one included.
	GetMaxAttempts() int
}

// NewFixedRetryPolicy creates a policy with a fixed delay between attempts.
// retryableKinds widens retryability to kinds that are terminal by default.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration, retryableKinds []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	kinds := make(map[exception.ErrorKind]bool, len(retryableKinds))
	for _, k := range retryableKinds {
		kinds[exception.ErrorKind(k)] = true
	}
	return &fixedRetryPolicy{maxAttempts: maxAttempts, delay: delay, retryableKinds: kinds}
}

// NewRetryPolicyFromConfig builds the item retry policy from batch.item_retry.
func NewRetryPolicyFromConfig(cfg *config.BatchConfig) RetryPolicy {
	r := cfg.ItemRetry
	return NewFixedRetryPolicy(r.MaxAttempts, time.Duration(r.InitialInterval)*time.Millisecond, r.RetryableKinds)
}

type fixedRetryPolicy struct {
	maxAttempts    int
	delay          time.Duration
	retryableKinds map[exception.ErrorKind]bool
}

func (p *fixedRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry honors the error's retryable flag first, then the configured kinds.
// Cancellation is never retried.
func (p *fixedRetryPolicy) ShouldRetry(err *exception.BatchError) bool {
	if err == nil || err.Kind == exception.KindCancelled {
		return false
	}
	return err.IsRetryable() || p.retryableKinds[err.Kind]
}

// GetBackoffInterval always returns the fixed delay.
func (p *fixedRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	return p.delay
}

var _ RetryPolicy = (*fixedRetryPolicy)(nil)
