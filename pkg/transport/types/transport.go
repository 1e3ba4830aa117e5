// Package types provides common types and interfaces shared by the MCP
// transports.
package types

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnsupportedTransport is returned when a transport type is not recognised.
var ErrUnsupportedTransport = errors.New("unsupported transport type")

// Middleware is a function that wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Transport is a running MCP transport.
type Transport interface {
	// Mode returns the transport mode.
	Mode() TransportType

	// Serve processes messages until ctx is cancelled or the peer goes away.
	// It returns nil on a clean shutdown.
	Serve(ctx context.Context) error
}

// TransportType represents the type of transport to use.
//
//nolint:revive // Intentionally named TransportType despite package name
type TransportType string

const (
	// TransportTypeStdio is the line-oriented standard stream transport.
	TransportTypeStdio TransportType = "stdio"

	// TransportTypeStreamableHTTP is the session based HTTP transport.
	TransportTypeStreamableHTTP TransportType = "streamable-http"
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	return string(t)
}

// ParseTransportType parses a string into a transport type.
func ParseTransportType(s string) (TransportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stdio":
		return TransportTypeStdio, nil
	case "streamable-http", "http":
		return TransportTypeStreamableHTTP, nil
	default:
		return "", ErrUnsupportedTransport
	}
}
