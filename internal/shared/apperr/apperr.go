package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error code carried on the wire.
type Kind string

const (
	KindInvalidInput          Kind = "InvalidInput"
	KindUnauthenticated       Kind = "Unauthenticated"
	KindForbidden             Kind = "Forbidden"
	KindNotFound              Kind = "NotFound"
	KindConflict              Kind = "Conflict"
	KindInsufficientFunds     Kind = "InsufficientFunds"
	KindNoCapacity            Kind = "NoCapacity"
	KindOutsideOperatingHours Kind = "OutsideOperatingHours"
	KindDependencyUnavailable Kind = "DependencyUnavailable"
	KindIdempotentReplay      Kind = "IdempotentReplay"
	KindInternal              Kind = "Internal"
)

// Error is a kind-tagged error with an optional details payload.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a kind-tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches a details payload to the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from an error chain. Unknown errors are Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its wire status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindNoCapacity, KindOutsideOperatingHours:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case KindIdempotentReplay:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the human-readable message for an error chain.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

// DetailsOf returns the optional details payload, or nil.
func DetailsOf(err error) map[string]interface{} {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}
