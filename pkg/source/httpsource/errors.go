package httpsource

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the source.
var (
	// ErrMissingTotal is returned when a response lacks a valid total header.
	ErrMissingTotal = errors.New("response has no valid total count header")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// StatusError describes a failed page request.
type StatusError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page request %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("page request %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry reports whether a failure of the given class may succeed on
// another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classOf extracts the class of err, or "" when err is not a StatusError.
func classOf(err error) ErrorClass {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Class
	}
	return ""
}
