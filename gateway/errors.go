package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies every failure the gateway can surface.
type ErrorCode string

const (
	ErrUnknownProvider   ErrorCode = "UNKNOWN_PROVIDER"
	ErrDuplicateProvider ErrorCode = "DUPLICATE_PROVIDER"
	ErrInvalidProfile    ErrorCode = "INVALID_PROFILE"
	ErrValidation        ErrorCode = "VALIDATION"
	ErrNotConfigured     ErrorCode = "CREDENTIAL_NOT_CONFIGURED"

	// Call-path codes. TRANSIENT_FAILURE is the only retryable code;
	// RATE_EXCEEDED_OR_UNAVAILABLE is what retry exhaustion collapses into.
	ErrTransient     ErrorCode = "TRANSIENT_FAILURE"
	ErrPermanent     ErrorCode = "PERMANENT_FAILURE"
	ErrRateExhausted ErrorCode = "RATE_EXCEEDED_OR_UNAVAILABLE"
	ErrCancelled     ErrorCode = "CANCELLED"
)

// Error is the structured error carried through the gateway. The Retryable
// flag is what the retry controller keys on; adapters set it when they
// classify a backend failure.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the upstream HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable reports whether err is a gateway Error marked retryable.
func IsRetryable(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if it is not
// a gateway Error.
func GetErrorCode(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// ValidationError reports every rule a request violated against a profile
// in a single value, so a caller gets the complete diagnosis in one pass.
type ValidationError struct {
	// MissingParams lists required parameters absent from the request.
	MissingParams []string `json:"missing_params,omitempty"`
	// UnsupportedValue maps a field name (size, quality, style, count) to
	// the offending value.
	UnsupportedValue map[string]string `json:"unsupported_value,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingParams) > 0 {
		parts = append(parts, fmt.Sprintf("missing params: %s", strings.Join(e.MissingParams, ", ")))
	}
	for field, value := range e.UnsupportedValue {
		parts = append(parts, fmt.Sprintf("unsupported %s %q", field, value))
	}
	if len(parts) == 0 {
		return "invalid request"
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.MissingParams) == 0 && len(e.UnsupportedValue) == 0
}

func (e *ValidationError) addMissing(param string) {
	for _, p := range e.MissingParams {
		if p == param {
			return
		}
	}
	e.MissingParams = append(e.MissingParams, param)
}

func (e *ValidationError) addUnsupported(field, value string) {
	if e.UnsupportedValue == nil {
		e.UnsupportedValue = make(map[string]string)
	}
	e.UnsupportedValue[field] = value
}
