package exception

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ClassifierModule is the Module value stamped on errors produced by Classify.
const ClassifierModule = "classifier"

// StatusCoder is implemented by provider errors that know the HTTP status of the failed call.
type StatusCoder interface {
	StatusCode() int
}

type keywordRule struct {
	kind     ErrorKind
	keywords []string
}

// keywordRules is evaluated in order; the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{KindAPIAuthentication, []string{"unauthorized", "unauthenticated", "authentication", "invalid api key", "api key", "api_key", "invalid_grant"}},
	{KindRateLimit, []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "quota exceeded"}},
	{KindNetwork, []string{"network", "timeout", "timed out", "connection refused", "connection reset", "econnrefused", "etimedout", "no such host"}},
	{KindInvalidCredentials, []string{"invalid credentials", "incomplete credentials", "malformed credentials", "missing credentials", "credentials are incomplete"}},
	{KindUserAlreadyExists, []string{"already exists"}},
	{KindAlreadyConnected, []string{"already connected"}},
	{KindDomainNotVerified, []string{"domain not verified", "domain is not verified"}},
	{KindDomainNotFound, []string{"domain not found", "domain does not exist"}},
	{KindLicenseLimitReached, []string{"license"}},
	{KindInsufficientPermissions, []string{"permission", "forbidden", "not authorized"}},
	{KindAccountNotFound, []string{"user not found", "account not found", "resource not found"}},
}

// Classify maps an arbitrary error to a BatchError.
// Errors that already carry a kind are returned unchanged. Everything else is
// classified by case-insensitive message keywords; when no keyword matches, a
// transport signature (net.Error, deadline, HTTP 429 or 5xx) decides between a
// retryable and a terminal API_ERROR.
func Classify(err error) *BatchError {
	if err == nil {
		return nil
	}
	if be, ok := AsBatchError(err); ok && be.Kind != "" {
		return be
	}
	if errors.Is(err, context.Canceled) {
		return NewBatchError(ClassifierModule, KindCancelled, "operation cancelled", err)
	}

	message := err.Error()
	lower := strings.ToLower(message)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return NewBatchError(ClassifierModule, rule.kind, message, err)
			}
		}
	}

	return classifyTransport(err, message)
}

func classifyTransport(err error, message string) *BatchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewBatchError(ClassifierModule, KindNetwork, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewBatchError(ClassifierModule, KindNetwork, message, err)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == 429:
			return NewBatchError(ClassifierModule, KindRateLimit, message, err).WithDetail("status_code", code)
		case code >= 500:
			return NewBatchError(ClassifierModule, KindAPI, message, err).
				WithRetryable(true).
				WithDetail("status_code", code)
		case code > 0:
			return NewBatchError(ClassifierModule, KindAPI, message, err).WithDetail("status_code", code)
		}
	}

	return NewBatchError(ClassifierModule, KindAPI, message, err)
}
