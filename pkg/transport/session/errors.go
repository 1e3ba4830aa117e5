package session

import "errors"

// Common session errors
var (
	// ErrSessionNotFound is returned when a session cannot be found or has expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionAlreadyExists is returned when trying to create a session with an existing ID
	ErrSessionAlreadyExists = errors.New("session already exists")

	// ErrInvalidTransition is returned when a session is moved to a state its current state cannot reach
	ErrInvalidTransition = errors.New("invalid session state transition")
)
