// Package mcp answers MCP JSON-RPC methods on top of the tool registry. It is
// transport agnostic; session state lives in the transports.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/tools"
)

// MCP method names handled here.
const (
	MethodInitialize              = string(mcpgo.MethodInitialize)
	MethodPing                    = string(mcpgo.MethodPing)
	MethodToolsList               = string(mcpgo.MethodToolsList)
	MethodToolsCall               = string(mcpgo.MethodToolsCall)
	MethodNotificationInitialized = "notifications/initialized"
	MethodNotificationCancelled   = "notifications/cancelled"
)

// Handler answers MCP requests.
type Handler struct {
	registry     *tools.Registry
	info         mcpgo.Implementation
	instructions string
}

// NewHandler creates a handler serving the tools in registry.
func NewHandler(registry *tools.Registry, name, version string) *Handler {
	return &Handler{
		registry: registry,
		info:     mcpgo.Implementation{Name: name, Version: version},
		instructions: "Vector search over encrypted indexes. Create an index, insert vectors, texts " +
			"or documents, then search it with a text query or a vector.",
	}
}

// Handle processes one request. It returns nil for notifications, which
// never get a response.
func (h *Handler) Handle(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	if !req.IsCall() {
		h.notify(req)
		return nil
	}

	switch req.Method {
	case MethodInitialize:
		return h.initialize(req)
	case MethodPing:
		return Result(req.ID, struct{}{})
	case MethodToolsList:
		return Result(req.ID, mcpgo.ListToolsResult{Tools: h.registry.List()})
	case MethodToolsCall:
		return h.callTool(ctx, req)
	default:
		return Error(req.ID, mcpgo.METHOD_NOT_FOUND, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (*Handler) notify(req *jsonrpc2.Request) {
	switch req.Method {
	case MethodNotificationInitialized:
		logger.Debug("Client finished initialization")
	case MethodNotificationCancelled:
		// calls finish on their own deadline; nothing is tracked per request id
		logger.Debugf("Client cancelled a request: %s", string(req.Params))
	default:
		logger.Debugf("Ignoring notification %s", req.Method)
	}
}

func (h *Handler) initialize(req *jsonrpc2.Request) *jsonrpc2.Response {
	var params mcpgo.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Error(req.ID, mcpgo.INVALID_PARAMS, fmt.Sprintf("invalid initialize params: %v", err))
		}
	}

	version := NegotiateVersion(params.ProtocolVersion)
	logger.Infof("Initializing session for %s %s (protocol %s)",
		params.ClientInfo.Name, params.ClientInfo.Version, version)

	result := mcpgo.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      h.info,
		Instructions:    h.instructions,
	}
	result.Capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{}
	return Result(req.ID, result)
}

func (h *Handler) callTool(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	var params mcpgo.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return Error(req.ID, mcpgo.INVALID_PARAMS, fmt.Sprintf("invalid tools/call params: %v", err))
	}
	if params.Name == "" {
		return Error(req.ID, mcpgo.INVALID_PARAMS, "tools/call requires a tool name")
	}

	var args map[string]any
	switch a := params.Arguments.(type) {
	case nil:
	case map[string]any:
		args = a
	default:
		return Error(req.ID, mcpgo.INVALID_PARAMS, "tools/call arguments must be an object")
	}

	return Result(req.ID, h.registry.Dispatch(ctx, tools.Call{Name: params.Name, Arguments: args}))
}

// NegotiateVersion echoes a supported client version and falls back to the
// latest version otherwise.
func NegotiateVersion(requested string) string {
	if slices.Contains(mcpgo.ValidProtocolVersions, requested) {
		return requested
	}
	return mcpgo.LATEST_PROTOCOL_VERSION
}

// Result builds a success response.
func Result(id jsonrpc2.ID, v any) *jsonrpc2.Response {
	resp, err := jsonrpc2.NewResponse(id, v, nil)
	if err != nil {
		return Error(id, mcpgo.INTERNAL_ERROR, fmt.Sprintf("failed to encode result: %v", err))
	}
	return resp
}

// Error builds an error response with a JSON-RPC error code.
func Error(id jsonrpc2.ID, code int, message string) *jsonrpc2.Response {
	return &jsonrpc2.Response{ID: id, Error: jsonrpc2.NewError(int64(code), message)}
}
