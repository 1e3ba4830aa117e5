// Package errors provides error types and constants for the transport package.
package errors

import (
	"errors"
	"fmt"
)

// Common transport errors
var (
	ErrNoSessionManager = errors.New("streamable HTTP transport requires a session manager")
	ErrTransportFailed  = errors.New("transport failed")
)

// TransportError represents an error related to transport operations
type TransportError struct {
	// Err is the underlying error
	Err error
	// Transport names the transport that failed
	Transport string
	// Message is an optional error message
	Message string
}

// Error returns the error message
func (e *TransportError) Error() string {
	if e.Message != "" {
		if e.Transport != "" {
			return fmt.Sprintf("%s: %s (transport: %s)", e.Err, e.Message, e.Transport)
		}
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}

	if e.Transport != "" {
		return fmt.Sprintf("%s (transport: %s)", e.Err, e.Transport)
	}

	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(err error, transport, message string) *TransportError {
	return &TransportError{
		Err:       err,
		Transport: transport,
		Message:   message,
	}
}
