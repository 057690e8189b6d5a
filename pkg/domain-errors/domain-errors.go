package domainerrors

import "errors"

// Code represents a failure category independent of the transport layer.
// These codes describe what went wrong in operational terms, not HTTP terms.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeAuthentication     Code = "authentication"
	CodeAuthorization      Code = "authorization"
	CodeNotFound           Code = "not_found"
	CodeRateLimited        Code = "rate_limited"
	CodeTimeout            Code = "timeout"
	CodeServiceUnavailable Code = "external_service_unavailable"
	CodeCircuitOpen        Code = "circuit_open"
	CodeDatabase           Code = "database_unavailable"
	CodeResource           Code = "resource_unavailable"
	CodeCrypto             Code = "cryptographic_operation"
	CodeInternal           Code = "unknown_internal"
)

// Retryable reports whether a category may be retried by default.
// Validation, auth, and crypto failures are terminal; a retry with the
// same input cannot succeed.
func (c Code) Retryable() bool {
	switch c {
	case CodeValidation, CodeAuthentication, CodeAuthorization, CodeCrypto, CodeNotFound:
		return false
	}
	return true
}

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be raised anywhere below the resilience
// boundary; classification at the boundary maps the code straight through.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from a domain error, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
