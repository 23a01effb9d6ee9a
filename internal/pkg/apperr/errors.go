// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindSecurity   Kind = "security"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

// Error is a classified application error. Domain packages wrap their
// sentinel errors in one of these so callers can match either on the
// sentinel (errors.Is) or on the kind (KindOf).
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Details   interface{}
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports user-correctable input problems
func Validation(message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: message, Err: err}
}

// NotFound reports a missing or foreign-owned resource
func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message, Err: err}
}

// Conflict reports a state conflict such as insufficient stock
func Conflict(code, message string, details interface{}, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Details: details, Err: err}
}

// Security reports a rejected credential or signature. The message is what
// callers see, so it never carries the underlying cause.
func Security(message string, err error) *Error {
	return &Error{Kind: KindSecurity, Code: "SECURITY_CHECK_FAILED", Message: message, Err: err}
}

// Upstream reports a failed call to the store or an external service
func Upstream(message string, retryable bool, err error) *Error {
	return &Error{Kind: KindUpstream, Code: "UPSTREAM_FAILURE", Message: message, Retryable: retryable, Err: err}
}

// As extracts the first *Error in the chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is an upstream failure worth retrying
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == KindUpstream && appErr.Retryable
}
