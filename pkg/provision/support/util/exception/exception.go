// Package exception provides the error types shared by every provisioning component.
// A BatchError carries a Kind from a closed taxonomy and a retryable flag, so the retry
// orchestrator and the progress ledger can treat failures uniformly regardless of
// which provider produced them.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// ErrorKind names a category of failure. It is persisted as BatchItem.errorCode.
type ErrorKind string

const (
	KindAccountNotFound         ErrorKind = "ACCOUNT_NOT_FOUND"
	KindCredentialsNotFound     ErrorKind = "CREDENTIALS_NOT_FOUND"
	KindInvalidCredentials      ErrorKind = "INVALID_CREDENTIALS"
	KindAlreadyConnected        ErrorKind = "ALREADY_CONNECTED"
	KindUserAlreadyExists       ErrorKind = "USER_ALREADY_EXISTS"
	KindDomainNotFound          ErrorKind = "DOMAIN_NOT_FOUND"
	KindDomainNotVerified       ErrorKind = "DOMAIN_NOT_VERIFIED"
	KindInsufficientPermissions ErrorKind = "INSUFFICIENT_PERMISSIONS"
	KindAuthentication          ErrorKind = "AUTHENTICATION_ERROR"
	KindAPIAuthentication       ErrorKind = "API_AUTHENTICATION_ERROR"
	KindLicenseLimitReached     ErrorKind = "LICENSE_LIMIT_REACHED"
	KindRateLimit               ErrorKind = "RATE_LIMIT_ERROR"
	KindNetwork                 ErrorKind = "NETWORK_ERROR"
	KindAPI                     ErrorKind = "API_ERROR"
	KindDatabase                ErrorKind = "DATABASE_ERROR"
	KindUnknown                 ErrorKind = "UNKNOWN_ERROR"

	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindNotConnected      ErrorKind = "NOT_CONNECTED"
	KindCancelled         ErrorKind = "CANCELLED"
	KindEmptyBatch        ErrorKind = "EMPTY_BATCH"
	KindBatchSizeExceeded ErrorKind = "BATCH_SIZE_EXCEEDED"
	KindBatchNotFound     ErrorKind = "BATCH_NOT_FOUND"
	KindBatchInProgress   ErrorKind = "BATCH_IN_PROGRESS"
	KindConfiguration     ErrorKind = "CONFIGURATION_ERROR"
)

// defaultRetryable holds the retryable flag each kind carries unless a caller overrides it.
// Kinds missing from the table are terminal.
var defaultRetryable = map[ErrorKind]bool{
	KindRateLimit: true,
	KindNetwork:   true,
	KindDatabase:  true,
}

// IsRetryableKind reports the default retryable flag for kind.
func IsRetryableKind(kind ErrorKind) bool {
	return defaultRetryable[kind]
}

// AllKinds returns every kind in the taxonomy. The order is stable.
func AllKinds() []ErrorKind {
	return []ErrorKind{
		KindAccountNotFound, KindCredentialsNotFound, KindInvalidCredentials, KindAlreadyConnected,
		KindUserAlreadyExists, KindDomainNotFound, KindDomainNotVerified, KindInsufficientPermissions,
		KindAuthentication, KindAPIAuthentication, KindLicenseLimitReached, KindRateLimit, KindNetwork,
		KindAPI, KindDatabase, KindUnknown, KindValidation, KindNotConnected, KindCancelled,
		KindEmptyBatch, KindBatchSizeExceeded, KindBatchNotFound, KindBatchInProgress, KindConfiguration,
	}
}

// errorRegistry maps error names referenced in configuration to concrete Go error instances.
// It holds error instances (singletons) for comparison using errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error type in the registry.
// Registered names can be referenced from configuration (for example in
// batch.item_retry.retryable_kinds) and are matched by IsErrorOfType.
//
// name: A unique identifier for the error type.
// prototype: An instance of the error to be registered. Used for comparison with errors.Is.
//
// If prototype is nil or name is empty, this function will panic.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the classified error produced anywhere in the provisioning pipeline.
// It records where the failure happened, its kind and whether another attempt may succeed.
type BatchError struct {
	// Module indicates the component where the error occurred (e.g., "connector", "executor", "ledger").
	Module string
	// Kind is the taxonomy category of the failure.
	Kind ErrorKind
	// Message is a concise description of the error, suitable for BatchItem.errorMessage.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// Details carries optional structured context (provider status code, field name, ...).
	Details map[string]interface{}
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError whose retryable flag is the kind's default.
//
// Parameters:
//
//	module: The component where the error occurred.
//	kind: The taxonomy category.
//	message: The error message.
//	originalErr: The original error to wrap. May be nil.
//
// Returns:
//
//	A new BatchError instance.
func NewBatchError(module string, kind ErrorKind, message string, originalErr error) *BatchError {
	return &BatchError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: IsRetryableKind(kind),
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// If the last variadic argument is an error it is extracted as the wrapped original error
// and not used for formatting.
//
// Example:
//
//	NewBatchErrorf("ledger", KindDatabase, "failed to update item %d", 3, sql.ErrConnDone)
//	-> message: "failed to update item 3", originalErr: sql.ErrConnDone
func NewBatchErrorf(module string, kind ErrorKind, format string, a ...interface{}) *BatchError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, args...), originalErr)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// WithRetryable returns the error with its retryable flag overridden.
// It is used when a transport signature makes an otherwise terminal kind retryable.
func (e *BatchError) WithRetryable(retryable bool) *BatchError {
	e.isRetryable = retryable
	return e
}

// WithDetail attaches a key/value pair to Details and returns the error.
func (e *BatchError) WithDetail(key string, value interface{}) *BatchError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, e.Kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, e.Kind, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is matches another BatchError of the same kind, so sentinel-style
// comparisons like errors.Is(err, &BatchError{Kind: KindNotConnected}) work.
func (e *BatchError) Is(target error) bool {
	t, ok := target.(*BatchError)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// AsBatchError returns the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the kind of the first BatchError in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	if be, ok := AsBatchError(err); ok && be.Kind != "" {
		return be.Kind
	}
	return KindUnknown
}

// HasKind reports whether err carries the given kind anywhere in its chain.
func HasKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &BatchError{Kind: kind})
}

// IsErrorOfType checks if an error matches a specified type name (string).
// errorTypeName can be a registered name, a taxonomy kind, a Go error type name
// (e.g., "*net.OpError") or a substring of an error message (e.g., "connection refused").
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()

	if ok && errors.Is(err, targetError) {
		return true
	}

	currentErr := err
	for currentErr != nil {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}

		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}

		currentErr = errors.Unwrap(currentErr)
	}

	return false
}

func init() {
	// Every taxonomy kind is addressable by name.
	for _, kind := range AllKinds() {
		RegisterErrorType(string(kind), &BatchError{Kind: kind})
	}

	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}

// ExtractErrorMessage extracts the error message string from an error.
// For BatchError, it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBatchError(err); ok {
		return be.Message
	}
	return err.Error()
}
