package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *fakeClock, *LocalStorage) {
	t.Helper()
	storage := NewLocalStorage()
	clock := &fakeClock{now: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(ttl, storage, clock.Now)
	t.Cleanup(m.Stop)
	return m, clock, storage
}

func TestManager_CreateGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, storage := newTestManager(t, time.Hour)

	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, storage.Count())

	got, err := m.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Delete(ctx, s.ID()))
	assert.Equal(t, StateClosed, s.State())
	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(ctx, s.ID()), ErrSessionNotFound)
}

func TestManager_GetUnknown(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestManager(t, time.Hour)

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_GetExpiresIdleSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, clock, storage := newTestManager(t, time.Minute)

	s, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	_, err = m.Get(ctx, s.ID())
	require.NoError(t, err, "activity within the TTL keeps the session alive")

	clock.Advance(50 * time.Second)
	_, err = m.Get(ctx, s.ID())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, storage.Count())
}

func TestManager_CleanupExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, clock, storage := newTestManager(t, time.Minute)

	idle, err := m.Create(ctx)
	require.NoError(t, err)
	clock.Advance(45 * time.Second)
	active, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	m.CleanupExpired(ctx)

	assert.Equal(t, StateClosed, idle.State())
	assert.Error(t, idle.Context().Err())
	assert.Equal(t, StateUninitialized, active.State())
	assert.Equal(t, 1, storage.Count())
}

func TestManager_StopClosesSessions(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Hour, nil)

	s, err := m.Create(context.Background())
	require.NoError(t, err)

	m.Stop()
	m.Stop()
	assert.Equal(t, StateClosed, s.State())
}

func TestLocalStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := NewLocalStorage()

	require.Error(t, storage.Store(ctx, nil))
	require.Error(t, storage.Store(ctx, New("")))

	s := New("x")
	require.NoError(t, storage.Store(ctx, s))
	got, err := storage.Load(ctx, "x")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = storage.Load(ctx, "y")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	expired, err := storage.DeleteExpired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []*Session{s}, expired)
	assert.Equal(t, 0, storage.Count())

	require.NoError(t, storage.Delete(ctx, "x"))
	require.NoError(t, storage.Close())
}
