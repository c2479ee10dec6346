// Package domerr provides coded domain errors for the registration lifecycle.
//
// Stores report infrastructure facts with pkg/platform/sentinel values;
// services translate those into coded errors here, and the HTTP layer maps
// codes to statuses. Handlers never inspect sentinel errors directly.
package domerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for callers and for HTTP translation.
type Code string

const (
	// CodeNotFound: no registration matches the lookup.
	CodeNotFound Code = "not_found"
	// CodeInvalidTransition: the requested state change is not permitted from
	// the record's current status.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeMissingPrecondition: approval without amount verification or a bib
	// candidate, rejection without a reason, and similar incomplete requests.
	CodeMissingPrecondition Code = "missing_precondition"
	// CodeBibConflict: the candidate bib is already held by another approved
	// registration.
	CodeBibConflict Code = "bib_conflict"
	// CodeStaleState: a concurrent modification won the compare-and-swap; the
	// caller must re-fetch and re-decide, never retry with the original intent.
	CodeStaleState Code = "stale_state"
	// CodeNotEligible: check-in attempted on a non-approved registration.
	CodeNotEligible Code = "not_eligible"
	// CodeValidation: malformed or incomplete input.
	CodeValidation Code = "validation"
	// CodeStorage: the backing store or object storage failed; retryable.
	CodeStorage Code = "storage"
	// CodeUnauthorized: missing or invalid staff credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal: unexpected failure.
	CodeInternal Code = "internal"
)

// Error carries a code, an operator-facing message, and an optional cause.
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

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with an operator-facing message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (anywhere in its chain) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the operator-facing message, defaulting to a generic one
// so internals never leak through the API.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to an HTTP status for the JSON error envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeMissingPrecondition:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeNotEligible:
		return http.StatusUnprocessableEntity
	case CodeBibConflict, CodeStaleState:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
