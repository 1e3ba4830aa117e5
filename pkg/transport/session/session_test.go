package session

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/envector-mcp/pkg/mcp"
)

func TestState_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateUninitialized, StateInitialized, true},
		{StateUninitialized, StateReady, false},
		{StateUninitialized, StateClosed, true},
		{StateInitialized, StateReady, true},
		{StateInitialized, StateInitialized, false},
		{StateInitialized, StateClosed, true},
		{StateReady, StateInitialized, false},
		{StateReady, StateClosed, true},
		{StateClosed, StateReady, false},
		{StateClosed, StateClosed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestState_Allows(t *testing.T) {
	t.Parallel()

	methods := []string{
		mcp.MethodInitialize, mcp.MethodNotificationInitialized, mcp.MethodPing,
		mcp.MethodToolsList, mcp.MethodToolsCall,
	}
	want := map[State][]string{
		StateUninitialized: {mcp.MethodInitialize, mcp.MethodPing},
		StateInitialized:   {mcp.MethodNotificationInitialized, mcp.MethodPing},
		StateReady:         {mcp.MethodNotificationInitialized, mcp.MethodPing, mcp.MethodToolsList, mcp.MethodToolsCall},
		StateClosed:        nil,
	}
	for state, allowed := range want {
		for _, m := range methods {
			assert.Equal(t, slices.Contains(allowed, m), state.Allows(m), "%s allows %s", state, m)
		}
	}
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()

	s := New("abc")
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, StateUninitialized, s.State())
	assert.False(t, s.Allow(mcp.MethodToolsCall))

	require.NoError(t, s.Initialize("2025-06-18"))
	assert.Equal(t, "2025-06-18", s.ProtocolVersion())
	assert.False(t, s.Allow(mcp.MethodToolsCall))

	err := s.Initialize("2025-06-18")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, s.Transition(StateReady))
	assert.True(t, s.Allow(mcp.MethodToolsCall))
	assert.NoError(t, s.Context().Err())

	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.Error(t, s.Context().Err(), "closing cancels in-flight calls")
	s.Close()
}

func TestSession_Touch(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	s := newSession("t", past)
	assert.Equal(t, past, s.CreatedAt())
	s.Touch()
	assert.True(t, s.UpdatedAt().After(past))
	assert.Equal(t, past, s.CreatedAt())
}
