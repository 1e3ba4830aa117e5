package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

// DefaultTTL is how long a session may stay idle before it is closed.
const DefaultTTL = 30 * time.Minute

// Manager holds sessions and closes the ones idle longer than the TTL.
type Manager struct {
	storage  Storage
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager creates a session manager with TTL and starts the cleanup worker.
// A nil storage uses LocalStorage.
func NewManager(ttl time.Duration, storage Storage) *Manager {
	return newManager(ttl, storage, time.Now)
}

func newManager(ttl time.Duration, storage Storage, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if storage == nil {
		storage = NewLocalStorage()
	}
	m := &Manager{
		storage: storage,
		ttl:     ttl,
		now:     now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.cleanupRoutine()
	return m
}

func (m *Manager) cleanupRoutine() {
	defer close(m.done)
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupExpired(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Create adds a new uninitialized session with a random ID.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	if _, err := m.storage.Load(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyExists, id)
	}

	s := newSession(id, m.now())
	if err := m.storage.Store(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	logger.Debugf("Created session %s", id)
	return s, nil
}

// Get retrieves a live session by ID and touches it. Closed and expired
// sessions are reported as ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.storage.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State() == StateClosed {
		return nil, ErrSessionNotFound
	}

	now := m.now()
	if now.Sub(s.UpdatedAt()) > m.ttl {
		m.close(ctx, s, "expired")
		return nil, ErrSessionNotFound
	}
	s.touchAt(now)
	return s, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, err := m.storage.Load(ctx, id)
	if err != nil {
		return err
	}
	m.close(ctx, s, "deleted")
	return nil
}

func (m *Manager) close(ctx context.Context, s *Session, reason string) {
	s.Close()
	if err := m.storage.Delete(ctx, s.ID()); err != nil {
		logger.Warnf("Failed to remove session %s: %v", s.ID(), err)
	}
	logger.Debugf("Closed session %s (%s)", s.ID(), reason)
}

// CleanupExpired closes sessions that have not been used within the TTL.
func (m *Manager) CleanupExpired(ctx context.Context) {
	expired, err := m.storage.DeleteExpired(ctx, m.now().Add(-m.ttl))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnf("Failed to clean up expired sessions: %v", err)
	}
	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		logger.Infof("Closed %d idle sessions", len(expired))
	}
}

// Stop stops the cleanup worker and closes every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.done
		if err := m.storage.Close(); err != nil {
			logger.Warnf("Failed to close session storage: %v", err)
		}
	})
}
