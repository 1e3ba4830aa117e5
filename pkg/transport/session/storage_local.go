package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalStorage implements the Storage interface using an in-memory sync.Map.
type LocalStorage struct {
	sessions sync.Map
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new local in-memory storage backend.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Store saves a session to the local storage.
func (s *LocalStorage) Store(_ context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("cannot store nil session")
	}
	if session.ID() == "" {
		return fmt.Errorf("cannot store session with empty ID")
	}

	s.sessions.Store(session.ID(), session)
	return nil
}

// Load retrieves a session from local storage.
func (s *LocalStorage) Load(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("cannot load session with empty ID")
	}

	val, ok := s.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	session, ok := val.(*Session)
	if !ok {
		return nil, fmt.Errorf("invalid session type in storage")
	}

	return session, nil
}

// Delete removes a session from local storage.
func (s *LocalStorage) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("cannot delete session with empty ID")
	}

	s.sessions.Delete(id)
	return nil
}

// DeleteExpired removes all sessions that haven't been updated since the given time.
func (s *LocalStorage) DeleteExpired(ctx context.Context, before time.Time) ([]*Session, error) {
	var expired []*Session

	s.sessions.Range(func(key, val any) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if session, ok := val.(*Session); ok && session.UpdatedAt().Before(before) {
			s.sessions.Delete(key)
			expired = append(expired, session)
		}
		return true
	})

	return expired, ctx.Err()
}

// Close closes and clears all sessions.
func (s *LocalStorage) Close() error {
	s.sessions.Range(func(key, val any) bool {
		if session, ok := val.(*Session); ok {
			session.Close()
		}
		s.sessions.Delete(key)
		return true
	})
	return nil
}

// Count returns the number of sessions in storage.
// This is a helper method not part of the Storage interface.
func (s *LocalStorage) Count() int {
	count := 0
	s.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
