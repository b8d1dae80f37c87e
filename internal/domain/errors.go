package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound = errors.New("domain: not found")
	ErrConflict = errors.New("domain: conflict")
)

// ErrorKind classifies a failure for retry and dead-letter routing.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindDatabase        ErrorKind = "database"
	KindExternalService ErrorKind = "external_service"
	KindInternal        ErrorKind = "internal"
)

// Error is a tagged failure carrying its kind and retryability.
// Callers dispatch on Kind rather than on concrete error types.
type Error struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewValidationError reports malformed or missing required fields.
// Never retryable: the same input will fail the same way.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewDatabaseError reports an entity-store operation failure.
func NewDatabaseError(msg string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: msg, Retryable: true, cause: cause}
}

// NewExternalError reports a failure talking to an external collaborator
// (case system, secret store). Retryable by default; pass retryable=false
// for permanent rejections.
func NewExternalError(msg string, cause error, retryable bool) *Error {
	return &Error{Kind: KindExternalService, Message: msg, Retryable: retryable, cause: cause}
}

// NewInternalError reports an unclassified failure, treated as fatal.
func NewInternalError(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// KindOf returns the ErrorKind of err, or KindInternal when err carries no tag.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err may succeed on a later attempt.
// Untagged errors are not retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
