// Package domainerrors carries coded errors across layers.
//
// Services return *Error values built with New or Wrap; transports map the
// Code to a status with ToHTTPStatus. Stores never build these directly, they
// return facts from pkg/platform/sentinel which services translate.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"

	// CodeInvalidState marks an entity in the wrong state for the operation,
	// such as an inactive itinerary.
	CodeInvalidState Code = "invalid_state"
	// CodeResolutionFailure marks a name that resolved to no seaport.
	CodeResolutionFailure Code = "resolution_failure"
	// CodeAmbiguousMatch marks a name that resolved to more than one seaport
	// under the fail-closed policy.
	CodeAmbiguousMatch Code = "ambiguous_match"
	// CodeConflictRetryExhausted marks a write that kept losing its
	// compare-and-write race.
	CodeConflictRetryExhausted Code = "conflict_retry_exhausted"
)

// Error is a coded error with a client-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause. errors.Is and
// errors.As still see the cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// GetCode returns the outermost code in the chain, or CodeInternal.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// ToHTTPStatus maps a code to the response status transports should use.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeResolutionFailure, CodeAmbiguousMatch:
		return http.StatusUnprocessableEntity
	case CodeConflictRetryExhausted:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
