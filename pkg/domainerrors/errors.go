// Package domainerrors defines the coded errors that cross the library
// boundary. Services translate sentinel/store errors into these; callers
// branch on the Code, never on driver error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for caller-side policy (retry, surface, 4xx/5xx).
type Code string

const (
	// CodeValidation marks caller-supplied data that violates a domain
	// invariant unrelated to allocation races (missing rejection reason,
	// duplicate globally-unique contact field). Never retried.
	CodeValidation Code = "validation"
	// CodeInvariantViolation marks a model-level invariant breach detected
	// while constructing or mutating an aggregate.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeNotFound marks a missing or soft-deleted record.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a duplicate concurrent request (e.g. a reprint
	// request while one is already pending).
	CodeConflict Code = "conflict"
	// CodeInvalidTransition marks a workflow action not legal from the
	// record's current status. Never retried.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeStaleVersion marks an optimistic-concurrency failure: the stored
	// version_number moved past the one the caller read.
	CodeStaleVersion Code = "stale_version"
	// CodeAllocationExhausted marks a create that ran out of allocation
	// retries; callers should retry the whole request after a delay.
	CodeAllocationExhausted Code = "allocation_exhausted"
	// CodeUnavailable marks an unreachable or timing-out backing store.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout marks a transaction aborted by context cancellation.
	CodeTimeout Code = "timeout"
	// CodeInternal marks everything else; the message is safe to log but not
	// to show.
	CodeInternal Code = "internal"
)

// Error is the concrete coded error. Use New/Newf/Wrap rather than
// constructing it directly.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.cause
			continue
		}
		return false
	}
	return false
}

// Is is shorthand for HasCode, matching how call sites read in tests.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status an edge layer should answer
// with. The library has no HTTP surface of its own; this keeps the mapping in
// one place for the services that do.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeStaleVersion:
		return http.StatusConflict
	case CodeAllocationExhausted, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
