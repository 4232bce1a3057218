// Package errors defines the typed error model shared across the SDK.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned when an invalid argument is provided
	ErrValidation = "validation"

	// ErrAuthentication is returned when credentials are missing or rejected
	ErrAuthentication = "authentication"

	// ErrNotFound is returned when a remote resource does not exist
	ErrNotFound = "not_found"

	// ErrTransport is returned when a network call fails before a usable
	// response envelope arrives
	ErrTransport = "transport"

	// ErrTimeout is returned when a polling budget is exhausted
	ErrTimeout = "timeout"

	// ErrTool is returned when a tool call fails on the remote runtime
	ErrTool = "tool"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// ErrClearanceTimeout reports that a context clear operation did not reach
// the available state within its polling budget. It is the only timeout the
// SDK surfaces as a raised error; other polling timeouts ride in result
// values.
var ErrClearanceTimeout = stderrors.New("context clearance timed out")

// Error represents an error in the SDK
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, cause error) *Error {
	return NewError(ErrAuthentication, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewTransportError creates a new transport error
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message, cause)
}

// NewToolError creates a new tool error
func NewToolError(message string, cause error) *Error {
	return NewError(ErrTool, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func isType(err error, errorType string) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == errorType
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrValidation)
}

// IsAuthentication checks if the error is an authentication error
func IsAuthentication(err error) bool {
	return isType(err, ErrAuthentication)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrNotFound)
}

// IsTransport checks if the error is a transport error
func IsTransport(err error) bool {
	return isType(err, ErrTransport)
}

// IsTimeout checks if the error is a timeout error
func IsTimeout(err error) bool {
	return isType(err, ErrTimeout)
}

// IsTool checks if the error is a tool error
func IsTool(err error) bool {
	return isType(err, ErrTool)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}

// RemoteError carries the failure fields of a control plane response
// envelope so callers can classify by service code and HTTP status.
type RemoteError struct {
	// RequestID is the control plane request identifier, when present
	RequestID string

	// Code is the service-level error code, e.g. InvalidMcpSession.NotFound
	Code string

	// Message is the service-level error message
	Message string

	// HTTPStatusCode is the status carried in the response envelope
	HTTPStatusCode int
}

// Error renders the failure the way the service reports it: the message
// prefixed with the bracketed service code when one was sent.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// AsRemote extracts a RemoteError from err's chain, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRemote checks if the error chain contains a control plane failure
func IsRemote(err error) bool {
	_, ok := AsRemote(err)
	return ok
}
