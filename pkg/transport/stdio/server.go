// Package stdio serves MCP over newline-delimited JSON-RPC on a pair of
// streams, normally the process's stdin and stdout.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/mcp"
	"github.com/stacklok/envector-mcp/pkg/transport/session"
)

// MaxMessageSize is the longest line the server accepts.
const MaxMessageSize = 10 << 20

// Server handles one client over a reader and a writer.
type Server struct {
	handler *mcp.Handler
}

// NewServer creates a stdio server.
func NewServer(handler *mcp.Handler) *Server {
	return &Server{handler: handler}
}

type line struct {
	data []byte
	err  error
}

// Serve processes messages one at a time until in reaches EOF or ctx is
// cancelled, both of which return nil.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	// the scanner blocks in Read, so it runs apart from the dispatch loop
	lines := make(chan line)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
		for scanner.Scan() {
			data := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line{data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	// one client, one session; there is no session id on this transport
	sess := session.New("stdio")
	defer sess.Close()

	w := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("stdio transport stopped")
			return nil
		case l, ok := <-lines:
			if !ok {
				logger.Debug("stdin closed")
				return nil
			}
			if l.err != nil {
				if errors.Is(l.err, bufio.ErrTooLong) {
					return fmt.Errorf("message exceeds %d bytes", MaxMessageSize)
				}
				return fmt.Errorf("failed to read message: %w", l.err)
			}

			reply := s.process(ctx, sess, l.data)
			if reply == nil {
				continue
			}
			if _, err := w.Write(append(reply, '\n')); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

// process handles a single line and returns the encoded reply, or nil when
// nothing is to be written back.
func (s *Server) process(ctx context.Context, sess *session.Session, data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if !gjson.ValidBytes(data) {
		return encodeError(jsonrpc2.ID{}, mcpgo.PARSE_ERROR, "Parse error")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return encodeError(jsonrpc2.ID{}, mcpgo.INVALID_REQUEST, "Batch and non-object messages are not supported")
	}
	if gjson.GetBytes(data, "jsonrpc").String() != "2.0" {
		return encodeError(requestID(data), mcpgo.INVALID_REQUEST, "Invalid JSON-RPC 2.0 message")
	}

	msg, err := jsonrpc2.DecodeMessage(data)
	if err != nil {
		return encodeError(requestID(data), mcpgo.INVALID_REQUEST, fmt.Sprintf("Invalid JSON-RPC 2.0 message: %v", err))
	}
	req, ok := msg.(*jsonrpc2.Request)
	if !ok {
		logger.Debug("Dropping JSON-RPC response from client")
		return nil
	}

	if !sess.Allow(req.Method) {
		if !req.IsCall() {
			logger.Debugf("Dropping %s notification before initialize", req.Method)
			return nil
		}
		return encodeError(req.ID, mcpgo.INVALID_REQUEST, "session not initialized")
	}

	resp := s.handler.Handle(ctx, req)
	if req.Method == mcp.MethodInitialize && resp != nil && resp.Error == nil {
		// notifications/initialized is optional here, so the session goes
		// straight to ready
		version := gjson.GetBytes(resp.Result, "protocolVersion").String()
		if err := sess.Initialize(version); err == nil {
			_ = sess.Transition(session.StateReady)
		}
	}
	if resp == nil || !req.IsCall() {
		return nil
	}

	out, err := jsonrpc2.EncodeMessage(resp)
	if err != nil {
		logger.Errorf("Failed to encode JSON-RPC response: %v", err)
		return encodeError(req.ID, mcpgo.INTERNAL_ERROR, "failed to encode response")
	}
	return out
}

// requestID recovers the id of a message that failed validation, so the
// error can still be correlated.
func requestID(data []byte) jsonrpc2.ID {
	id := gjson.GetBytes(data, "id")
	switch id.Type {
	case gjson.Number:
		return jsonrpc2.Int64ID(id.Int())
	case gjson.String:
		return jsonrpc2.StringID(id.String())
	default:
		return jsonrpc2.ID{}
	}
}

func encodeError(id jsonrpc2.ID, code int, message string) []byte {
	out, err := mcp.EncodeError(id, code, message)
	if err != nil {
		logger.Errorf("Failed to encode JSON-RPC error: %v", err)
		return nil
	}
	return out
}
