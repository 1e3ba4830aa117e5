package transport

import (
	"context"
	"time"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/transport/errors"
	"github.com/stacklok/envector-mcp/pkg/transport/streamable"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

// HTTPTransport runs the streamable HTTP server for the lifetime of a context.
type HTTPTransport struct {
	server  *streamable.Server
	started chan struct{}
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(server *streamable.Server) *HTTPTransport {
	return &HTTPTransport{server: server, started: make(chan struct{})}
}

// Mode returns the transport mode.
func (*HTTPTransport) Mode() types.TransportType {
	return types.TransportTypeStreamableHTTP
}

// Started is closed once the server is listening.
func (t *HTTPTransport) Started() <-chan struct{} {
	return t.started
}

// Addr returns the listening address once started.
func (t *HTTPTransport) Addr() string {
	return t.server.Addr()
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (t *HTTPTransport) Serve(ctx context.Context) error {
	if err := t.server.Start(ctx); err != nil {
		return errors.NewTransportError(err, t.Mode().String(), "failed to start")
	}
	close(t.started)

	<-ctx.Done()
	logger.Info("Shutting down streamable HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := t.server.Stop(shutdownCtx); err != nil {
		return errors.NewTransportError(err, t.Mode().String(), "failed to shut down")
	}
	return nil
}
