// Package transport selects and runs the transport an MCP client talks to.
package transport

import (
	"io"
	"os"

	"github.com/stacklok/envector-mcp/pkg/mcp"
	"github.com/stacklok/envector-mcp/pkg/transport/errors"
	"github.com/stacklok/envector-mcp/pkg/transport/session"
	"github.com/stacklok/envector-mcp/pkg/transport/stdio"
	"github.com/stacklok/envector-mcp/pkg/transport/streamable"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
)

// Config selects a transport and carries its settings.
type Config struct {
	Type types.TransportType

	// HTTP configures the streamable HTTP transport.
	HTTP streamable.Config
	// Sessions backs the streamable HTTP transport. The caller stops it.
	Sessions *session.Manager

	// Stdin and Stdout default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// Factory creates transports
type Factory struct{}

// NewFactory creates a new transport factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates a transport based on the provided configuration
func (*Factory) Create(config Config, handler *mcp.Handler) (types.Transport, error) {
	switch config.Type {
	case types.TransportTypeStdio:
		in, out := config.Stdin, config.Stdout
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return NewStdioTransport(stdio.NewServer(handler), in, out), nil
	case types.TransportTypeStreamableHTTP:
		if config.Sessions == nil {
			return nil, errors.ErrNoSessionManager
		}
		return NewHTTPTransport(streamable.NewServer(config.HTTP, handler, config.Sessions)), nil
	default:
		return nil, types.ErrUnsupportedTransport
	}
}
