package session

import (
	"context"
	"time"
)

// Storage defines the minimal interface for session storage backends.
type Storage interface {
	// Store creates or updates a session in the storage backend.
	// If the session already exists, it will be overwritten.
	Store(ctx context.Context, session *Session) error

	// Load retrieves a session by ID from the storage backend.
	// Returns ErrSessionNotFound if the session doesn't exist.
	// Note: This does not automatically touch the session.
	Load(ctx context.Context, id string) (*Session, error)

	// Delete removes a session from the storage backend.
	// It is not an error if the session doesn't exist.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all sessions that haven't been updated since the
	// given time and returns them so the caller can close them.
	DeleteExpired(ctx context.Context, before time.Time) ([]*Session, error)

	// Close closes and removes every stored session.
	Close() error
}
