package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failNTimes returns an operation that fails with err n times, then succeeds.
func failNTimes(n int, err error, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= n {
			return err
		}
		return nil
	}
}

func noWait(o *Orchestrator, waits *[]time.Duration) {
	o.wait = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestExecute_RetriesTransientFailuresUntilSuccess(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(3, 2*time.Second, nil))
	var waits []time.Duration
	noWait(o, &waits)

	calls := 0
	var retried []int
	attempts, err := o.Execute(context.Background(),
		failNTimes(2, errors.New("connection refused"), &calls),
		func(attempt int, e *exception.BatchError) {
			retried = append(retried, attempt)
			assert.Equal(t, exception.KindNetwork, e.Kind)
		})

	require.Nil(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits)
}

func TestExecute_StopsAtMaxAttempts(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(3, 0, nil))
	var waits []time.Duration
	noWait(o, &waits)

	calls := 0
	attempts, err := o.Execute(context.Background(), failNTimes(10, errors.New("Rate limit exceeded"), &calls), nil)

	require.NotNil(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, exception.KindRateLimit, err.Kind)
	assert.Len(t, waits, 2)
}

func TestExecute_TerminalFailureIsNotRetried(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(3, 0, nil))
	calls := 0
	attempts, err := o.Execute(context.Background(), failNTimes(10, errors.New("User already exists"), &calls), nil)

	require.NotNil(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, exception.KindUserAlreadyExists, err.Kind)
	assert.False(t, err.IsRetryable())
}

func TestExecute_ConfiguredKindsWidenRetryability(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(2, 0, []string{"API_ERROR"}))
	var waits []time.Duration
	noWait(o, &waits)

	calls := 0
	attempts, err := o.Execute(context.Background(), failNTimes(1, errors.New("weird upstream reply"), &calls), nil)

	require.Nil(t, err)
	assert.Equal(t, 2, attempts)
}

func TestExecute_CancelledDuringDelay(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(3, time.Hour, nil))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan struct{})
	var attempts int
	var err *exception.BatchError
	go func() {
		defer close(done)
		attempts, err = o.Execute(ctx, failNTimes(10, errors.New("timeout"), &calls), func(int, *exception.BatchError) {
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not observe cancellation")
	}
	require.NotNil(t, err)
	assert.Equal(t, exception.KindCancelled, err.Kind)
	assert.Equal(t, 1, attempts)
	// The failure that caused the wait is kept.
	assert.Equal(t, string(exception.KindNetwork), err.Details["last_kind"])
	assert.Contains(t, err.Message, "NETWORK_ERROR")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_CancelledBeforeFirstAttempt(t *testing.T) {
	o := NewOrchestrator(NewFixedRetryPolicy(3, 0, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := o.Execute(ctx, failNTimes(0, nil, &calls), nil)

	require.NotNil(t, err)
	assert.Equal(t, exception.KindCancelled, err.Kind)
	assert.Zero(t, attempts)
	assert.Zero(t, calls)
}

func TestNewRetryPolicyFromConfig(t *testing.T) {
	p := NewRetryPolicyFromConfig(&config.BatchConfig{ItemRetry: config.ItemRetryConfig{MaxAttempts: 4, InitialInterval: 1500}})
	assert.Equal(t, 4, p.GetMaxAttempts())
	assert.Equal(t, 1500*time.Millisecond, p.GetBackoffInterval(1))
	assert.False(t, p.ShouldRetry(exception.NewBatchError("x", exception.KindCancelled, "c", nil).WithRetryable(true)))
}
