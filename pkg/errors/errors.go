package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeSetup       ErrorType = "setup"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a classification alongside the message so callers can
// decide between retrying, skipping and aborting.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error without a cause
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around cause
func Wrap(t ErrorType, msg string, cause error) *Error {
	return &Error{Type: t, Message: msg, Cause: cause}
}

// Setup wraps a failure that must abort the whole run: missing browser
// binary, unreachable session, rejected cookie.
func Setup(msg string, cause error) *Error {
	return Wrap(ErrorTypeSetup, msg, cause)
}

// FromStatus maps an HTTP status code to a typed error
func FromStatus(code int, msg string) *Error {
	t := ErrorTypeUnknown
	switch {
	case code == 429:
		t = ErrorTypeRateLimit
	case code == 401 || code == 403:
		t = ErrorTypeAuth
	case code == 404:
		t = ErrorTypeNotFound
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{Type: t, Message: msg, Code: code}
}

// TypeOf returns the type of the first *Error in err's chain
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsSetup reports whether err is a fatal setup error
func IsSetup(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeSetup
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
