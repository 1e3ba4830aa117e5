package transport

import (
	"context"
	"io"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/transport/errors"
	"github.com/stacklok/envector-mcp/pkg/transport/stdio"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
)

// StdioTransport serves one client over a pair of streams.
type StdioTransport struct {
	server *stdio.Server
	stdin  io.Reader
	stdout io.Writer
}

// NewStdioTransport creates a new stdio transport.
func NewStdioTransport(server *stdio.Server, stdin io.Reader, stdout io.Writer) *StdioTransport {
	return &StdioTransport{server: server, stdin: stdin, stdout: stdout}
}

// Mode returns the transport mode.
func (*StdioTransport) Mode() types.TransportType {
	return types.TransportTypeStdio
}

// Serve processes messages until stdin closes or ctx is cancelled.
func (t *StdioTransport) Serve(ctx context.Context) error {
	logger.Info("Serving MCP on stdio")
	if err := t.server.Serve(ctx, t.stdin, t.stdout); err != nil {
		return errors.NewTransportError(err, t.Mode().String(), "")
	}
	return nil
}
