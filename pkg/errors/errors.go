package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeUpstream           ErrorType = "upstream"
	ErrorTypeNetwork            ErrorType = "network"
	ErrorTypeAuth               ErrorType = "auth"
	ErrorTypeParsing            ErrorType = "parsing"
	ErrorTypeMalformedItem      ErrorType = "malformed_item"
	ErrorTypeStorageConflict    ErrorType = "storage_conflict"
	ErrorTypeUnresolvedLink     ErrorType = "unresolved_link"
	ErrorTypeFetcherFailure     ErrorType = "fetcher_failure"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeUnknown            ErrorType = "unknown"
)

// Error carries a classified failure. Code is the HTTP status when one applies.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap classifies an underlying error
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// Upstream builds the fatal error returned for a terminal HTTP status
func Upstream(code int, endpoint string) *Error {
	return &Error{
		Type:    ErrorTypeUpstream,
		Code:    code,
		Message: fmt.Sprintf("%s returned %d %s", endpoint, code, http.StatusText(code)),
	}
}

// TypeOf returns the ErrorType of the first classified error in the chain
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains a classified error of type t
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
// for plain binary fetches (media CDN and scraped sites).
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
