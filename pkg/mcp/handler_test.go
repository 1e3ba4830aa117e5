package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/envector-mcp/pkg/tools"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	registry, err := tools.NewRegistry()
	require.NoError(t, err)
	registry.Register(tools.Tool{
		Name:   "add",
		Params: []tools.Param{{Name: "a", Type: tools.TypeNumber, Required: true}, {Name: "b", Type: tools.TypeNumber, Default: 1}},
		Handler: func(_ context.Context, args tools.Args) (any, error) {
			return args["a"].(float64) + float64(args.Int("b")), nil
		},
	})
	return NewHandler(registry, "test-server", "1.2.3")
}

func call(t *testing.T, method string, params any) *jsonrpc2.Request {
	t.Helper()
	req, err := jsonrpc2.NewCall(jsonrpc2.Int64ID(1), method, params)
	require.NoError(t, err)
	return req
}

func decode[T any](t *testing.T, resp *jsonrpc2.Response) T {
	t.Helper()
	require.NotNil(t, resp)
	require.NoError(t, resp.Error)
	var v T
	require.NoError(t, json.Unmarshal(resp.Result, &v))
	return v
}

func errorCode(t *testing.T, resp *jsonrpc2.Response) int64 {
	t.Helper()
	require.NotNil(t, resp)
	require.Error(t, resp.Error)
	data, err := jsonrpc2.EncodeMessage(resp)
	require.NoError(t, err)
	var wire struct {
		Error struct {
			Code int64 `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	return wire.Error.Code
}

func TestHandler_Initialize(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"supported version echoed", mcpgo.ValidProtocolVersions[len(mcpgo.ValidProtocolVersions)-1], mcpgo.ValidProtocolVersions[len(mcpgo.ValidProtocolVersions)-1]},
		{"unknown version", "1999-01-01", mcpgo.LATEST_PROTOCOL_VERSION},
		{"no version", "", mcpgo.LATEST_PROTOCOL_VERSION},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := h.Handle(context.Background(), call(t, MethodInitialize, map[string]any{
				"protocolVersion": tt.requested,
				"clientInfo":      map[string]any{"name": "c", "version": "0"},
			}))
			res := decode[mcpgo.InitializeResult](t, resp)
			assert.Equal(t, tt.want, res.ProtocolVersion)
			assert.Equal(t, "test-server", res.ServerInfo.Name)
			assert.Equal(t, "1.2.3", res.ServerInfo.Version)
			assert.NotNil(t, res.Capabilities.Tools)
		})
	}
}

func TestHandler_PingAndList(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	ping := h.Handle(context.Background(), call(t, MethodPing, nil))
	assert.Equal(t, map[string]any{}, decode[map[string]any](t, ping))

	list := decode[mcpgo.ListToolsResult](t, h.Handle(context.Background(), call(t, MethodToolsList, nil)))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "add", list.Tools[0].Name)
	assert.Equal(t, []string{"a"}, list.Tools[0].InputSchema.Required)
}

type callResult struct {
	IsError           bool           `json:"isError"`
	StructuredContent map[string]any `json:"structuredContent"`
}

func TestHandler_ToolsCall(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	resp := h.Handle(context.Background(), call(t, MethodToolsCall, map[string]any{
		"name": "add", "arguments": map[string]any{"a": 2},
	}))
	res := decode[callResult](t, resp)
	assert.False(t, res.IsError)
	assert.Equal(t, map[string]any{"ok": true, "results": 3.0}, res.StructuredContent)

	// unknown tools are tool errors, not protocol errors
	resp = h.Handle(context.Background(), call(t, MethodToolsCall, map[string]any{"name": "nope"}))
	res = decode[callResult](t, resp)
	assert.True(t, res.IsError)
	assert.Equal(t, tools.CodeUnknownTool, res.StructuredContent["code"])
}

func TestHandler_ProtocolErrors(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	tests := []struct {
		name string
		req  *jsonrpc2.Request
		want int64
	}{
		{"unknown method", call(t, "resources/list", nil), mcpgo.METHOD_NOT_FOUND},
		{"missing call params", call(t, MethodToolsCall, nil), mcpgo.INVALID_PARAMS},
		{"empty tool name", call(t, MethodToolsCall, map[string]any{"arguments": map[string]any{}}), mcpgo.INVALID_PARAMS},
		{"arguments not an object", call(t, MethodToolsCall, map[string]any{"name": "add", "arguments": []int{1}}), mcpgo.INVALID_PARAMS},
		{"bad initialize params", call(t, MethodInitialize, []string{"x"}), mcpgo.INVALID_PARAMS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errorCode(t, h.Handle(context.Background(), tt.req)))
		})
	}
}

func TestHandler_NotificationsHaveNoResponse(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	for _, method := range []string{MethodNotificationInitialized, MethodNotificationCancelled, "notifications/other"} {
		n, err := jsonrpc2.NewNotification(method, nil)
		require.NoError(t, err)
		assert.Nil(t, h.Handle(context.Background(), n), method)
	}
}

func TestEncodeError(t *testing.T) {
	t.Parallel()

	data, err := EncodeError(jsonrpc2.ID{}, mcpgo.PARSE_ERROR, "bad json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"bad json"}}`, string(data))

	data, err = EncodeError(jsonrpc2.Int64ID(7), mcpgo.INVALID_REQUEST, "nope")
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"error":{"code":-32600,"message":"nope"}}`, string(data))
}
