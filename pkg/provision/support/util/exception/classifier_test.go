package exception_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"

	"github.com/stretchr/testify/assert"
)

type statusErr struct {
	code int
	msg  string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) StatusCode() int { return e.code }

func TestClassify_KeywordPriority(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      exception.ErrorKind
		retryable bool
	}{
		{"auth", errors.New("401 Unauthorized"), exception.KindAPIAuthentication, false},
		{"api key", errors.New("Invalid API key supplied"), exception.KindAPIAuthentication, false},
		{"rate limit", errors.New("Rate limit exceeded, slow down"), exception.KindRateLimit, true},
		{"too many requests", errors.New("429 Too Many Requests"), exception.KindRateLimit, true},
		{"network", errors.New("network unreachable"), exception.KindNetwork, true},
		{"timeout", errors.New("request Timeout while waiting"), exception.KindNetwork, true},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), exception.KindNetwork, true},
		{"credentials", errors.New("SMTP credentials are incomplete"), exception.KindInvalidCredentials, false},
		{"user exists", errors.New("User already exists"), exception.KindUserAlreadyExists, false},
		{"domain not verified", errors.New("Domain not verified for this customer"), exception.KindDomainNotVerified, false},
		{"license", errors.New("License limit reached for SKU"), exception.KindLicenseLimitReached, false},
		{"permission", errors.New("Not Authorized to access this resource/api"), exception.KindInsufficientPermissions, false},
		{"unmatched", errors.New("something odd happened"), exception.KindAPI, false},
		// An auth keyword wins over a later network keyword.
		{"priority auth over network", errors.New("authentication failed: network policy"), exception.KindAPIAuthentication, false},
		// A rate limit keyword wins over a timeout keyword.
		{"priority rate over network", errors.New("rate limit hit after timeout"), exception.KindRateLimit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := exception.Classify(tt.err)
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.retryable, be.IsRetryable())
			assert.Equal(t, tt.err.Error(), be.Message)
			assert.ErrorIs(t, be, tt.err)
		})
	}
}

func TestClassify_PassesThroughClassifiedErrors(t *testing.T) {
	original := exception.NewBatchError("connector", exception.KindValidation, "bad local part", nil)
	wrapped := fmt.Errorf("create: %w", original)

	assert.Same(t, original, exception.Classify(wrapped))
	assert.Nil(t, exception.Classify(nil))
}

func TestClassify_TransportSignatures(t *testing.T) {
	t.Run("5xx is retryable API error", func(t *testing.T) {
		be := exception.Classify(&statusErr{code: 503, msg: "upstream unavailable"})
		assert.Equal(t, exception.KindAPI, be.Kind)
		assert.True(t, be.IsRetryable())
		assert.Equal(t, 503, be.Details["status_code"])
	})

	t.Run("429 without keyword is rate limit", func(t *testing.T) {
		be := exception.Classify(&statusErr{code: 429, msg: "slow down"})
		assert.Equal(t, exception.KindRateLimit, be.Kind)
		assert.True(t, be.IsRetryable())
	})

	t.Run("4xx stays terminal", func(t *testing.T) {
		be := exception.Classify(&statusErr{code: 400, msg: "bad request body"})
		assert.Equal(t, exception.KindAPI, be.Kind)
		assert.False(t, be.IsRetryable())
	})

	t.Run("net.Error", func(t *testing.T) {
		be := exception.Classify(&net.DNSError{Err: "server misbehaving", Name: "warmup.example"})
		assert.Equal(t, exception.KindNetwork, be.Kind)
		assert.True(t, be.IsRetryable())
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		be := exception.Classify(fmt.Errorf("call: %w", context.DeadlineExceeded))
		assert.Equal(t, exception.KindNetwork, be.Kind)
	})

	t.Run("cancellation", func(t *testing.T) {
		be := exception.Classify(fmt.Errorf("call: %w", context.Canceled))
		assert.Equal(t, exception.KindCancelled, be.Kind)
		assert.False(t, be.IsRetryable())
	})
}
