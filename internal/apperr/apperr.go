// Package apperr defines the error kinds returned by the marketplace services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a service error so callers can map it without string matching.
type Kind int

const (
	// KindInternal marks unexpected failures.
	KindInternal Kind = iota
	// KindNotFound marks a missing entity.
	KindNotFound
	// KindValidation marks malformed input rejected before any write.
	KindValidation
	// KindConflict marks a uniqueness or state conflict.
	KindConflict
	// KindStorageFailure marks a blob storage failure.
	KindStorageFailure
	// KindForbidden marks an operation the caller may not perform.
	KindForbidden
	// KindUnauthorized marks missing or rejected credentials.
	KindUnauthorized
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStorageFailure:
		return "storage_failure"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches sentinel errors by kind and message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Kind == other.Kind && e.Message == other.Message
}

// ErrInvalidCredentials is returned when a login does not match any active account.
var ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "invalid credentials"}

// Named conflicts surfaced by the entitlement and account services.
var (
	ErrUserAlreadySubscribed  = &Error{Kind: KindConflict, Message: "user already subscribed"}
	ErrSubscriptionNotFound   = &Error{Kind: KindNotFound, Message: "subscription not found"}
	ErrNoEligibleSubscription = &Error{Kind: KindConflict, Message: "no eligible subscription"}
	ErrDuplicateUsername      = &Error{Kind: KindConflict, Message: "username already taken"}
	ErrDuplicateEmail         = &Error{Kind: KindConflict, Message: "email already taken"}
)

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a forbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps a blob storage error.
func StorageFailure(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorageFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// Wrap attaches a kind to an arbitrary error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
