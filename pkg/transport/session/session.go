// Package session tracks MCP sessions: their lifecycle state machine, the
// manager that expires idle sessions, and the storage behind it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session is one client session. It is safe for concurrent use.
type Session struct {
	id      string
	created time.Time

	mu              sync.Mutex
	updated         time.Time
	state           State
	protocolVersion string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an uninitialized session.
func New(id string) *Session {
	return newSession(id, time.Now())
}

func newSession(id string, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      id,
		created: now,
		updated: now,
		state:   StateUninitialized,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// UpdatedAt returns the time of the last activity.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.touchAt(time.Now())
}

func (s *Session) touchAt(t time.Time) {
	s.mu.Lock()
	s.updated = t
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProtocolVersion returns the version negotiated by initialize.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// Allow reports whether the session's current state accepts method.
func (s *Session) Allow(method string) bool {
	return s.State().Allows(method)
}

// Context is cancelled when the session closes, which aborts in-flight calls.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Initialize records the negotiated protocol version and moves the session to
// StateInitialized.
func (s *Session) Initialize(protocolVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StateInitialized); err != nil {
		return err
	}
	s.protocolVersion = protocolVersion
	return nil
}

// Transition moves the session to next.
func (s *Session) Transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *Session) transitionLocked(next State) error {
	if !s.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	if next == StateClosed {
		s.cancel()
	}
	return nil
}

// Close moves the session to StateClosed. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		_ = s.transitionLocked(StateClosed)
	}
}
