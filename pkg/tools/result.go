package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Envelope is the structured content of every tool result.
type Envelope struct {
	OK      bool   `json:"ok"`
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func successResult(payload any) *mcp.CallToolResult {
	env := Envelope{OK: true, Results: payload}
	text, err := json.Marshal(env)
	if err != nil {
		return errorResult(fmt.Errorf("failed to encode tool result: %w", err))
	}
	return mcp.NewToolResultStructured(env, string(text))
}

func errorResult(err error) *mcp.CallToolResult {
	res := mcp.NewToolResultError(err.Error())
	res.StructuredContent = Envelope{Error: err.Error(), Code: ErrorCode(err)}
	return res
}
