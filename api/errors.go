package api

import (
	"errors"
	"fmt"
)

// ErrorType discriminates the failure modes of a Client call.
// The set is closed: every error returned by Client carries exactly one of these.
type ErrorType string

const (
	ErrInvalidURL    ErrorType = "invalid-url"
	ErrNoData        ErrorType = "no-data"
	ErrDecoding      ErrorType = "decoding"
	ErrNetwork       ErrorType = "network"
	ErrServer        ErrorType = "server"
	ErrInvalidAPIKey ErrorType = "invalid-api-key"
	ErrRateLimited   ErrorType = "rate-limited"
)

// Error is the only error type returned by Client.
type Error struct {
	// Type is the stable discriminator callers switch on.
	Type ErrorType

	// Message is human readable and safe to show in a UI.
	Message string

	// StatusCode is the HTTP status when a response was received, else 0.
	StatusCode int

	// Err is the underlying cause, kept for diagnostics.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Display renders the error the way list views show it: "<type>: <message>".
func (e *Error) Display() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newInvalidURL(err error) *Error {
	return &Error{Type: ErrInvalidURL, Message: "Invalid URL", Err: err}
}

func newNoData(status int) *Error {
	return &Error{Type: ErrNoData, Message: "No data received", StatusCode: status}
}

func newDecoding(message string, err error) *Error {
	return &Error{Type: ErrDecoding, Message: message, Err: err}
}

func newNetwork(err error) *Error {
	return &Error{Type: ErrNetwork, Message: "Network request failed", Err: err}
}

func newServer(status int, message string) *Error {
	return &Error{Type: ErrServer, Message: message, StatusCode: status}
}

func newInvalidAPIKey() *Error {
	return &Error{Type: ErrInvalidAPIKey, Message: "Invalid API key", StatusCode: 401}
}

func newRateLimited() *Error {
	return &Error{Type: ErrRateLimited, Message: "Rate limit exceeded", StatusCode: 429}
}

// TypeOf returns the ErrorType of err, or "" if err is not (and does not wrap) an *Error.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ""
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsTransient reports whether a caller may reasonably retry err.
// Network failures, rate limiting and 5xx server errors qualify.
func IsTransient(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Type {
	case ErrNetwork, ErrRateLimited:
		return true
	case ErrServer:
		return apiErr.StatusCode >= 500
	default:
		return false
	}
}
