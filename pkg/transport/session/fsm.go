package session

import (
	"slices"

	"github.com/stacklok/envector-mcp/pkg/mcp"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateUninitialized is a session that has not seen initialize yet.
	StateUninitialized State = iota
	// StateInitialized has answered initialize and waits for the client's
	// notifications/initialized.
	StateInitialized
	// StateReady accepts tool calls.
	StateReady
	// StateClosed is terminal.
	StateClosed
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateInitialized:   "initialized",
	StateReady:         "ready",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

var transitions = map[State][]State{
	StateUninitialized: {StateInitialized, StateClosed},
	StateInitialized:   {StateReady, StateClosed},
	StateReady:         {StateClosed},
}

// CanTransition reports whether a session in s may move to next.
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// Allows reports whether a session in s accepts method.
func (s State) Allows(method string) bool {
	switch s {
	case StateUninitialized:
		return method == mcp.MethodInitialize || method == mcp.MethodPing
	case StateInitialized:
		return method == mcp.MethodNotificationInitialized || method == mcp.MethodPing
	case StateReady:
		return method != mcp.MethodInitialize
	default:
		return false
	}
}
