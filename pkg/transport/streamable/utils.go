package streamable

import (
	"bytes"
	"net/http"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/mcp"
)

// isNotification returns true if the JSON-RPC message is a notification (no ID).
func isNotification(msg jsonrpc2.Message) bool {
	if req, ok := msg.(*jsonrpc2.Request); ok {
		return !req.IsCall()
	}
	return false
}

// isBatch reports whether the body is a JSON array.
func isBatch(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// acceptsJSON reports whether the Accept header values allow a JSON body.
// A request without an Accept header accepts anything.
func acceptsJSON(values []string) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			mediaType, _, _ := strings.Cut(part, ";")
			switch strings.ToLower(strings.TrimSpace(mediaType)) {
			case "application/json", "application/*", "*/*":
				return true
			}
		}
	}
	return false
}

// checkEnvelope returns the JSON-RPC error code for a body that is not a
// single JSON-RPC 2.0 message, or 0 if it looks like one.
func checkEnvelope(body []byte) int {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return mcpgo.PARSE_ERROR
	}
	if gjson.GetBytes(body, "jsonrpc").String() != "2.0" {
		return mcpgo.INVALID_REQUEST
	}
	return 0
}

// writeJSONRPC writes a jsonrpc2.Message using the library's encoder to ensure proper serialization.
func writeJSONRPC(w http.ResponseWriter, status int, msg jsonrpc2.Message) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		logger.Errorf("Failed to encode JSON-RPC response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Debugf("Failed to write response: %v", err)
	}
}

// writeJSONRPCError writes a JSON-RPC error response with an HTTP status.
func writeJSONRPCError(w http.ResponseWriter, status int, id jsonrpc2.ID, code int, message string) {
	data, err := mcp.EncodeError(id, code, message)
	if err != nil {
		logger.Errorf("Failed to encode JSON-RPC error: %v", err)
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Debugf("Failed to write response: %v", err)
	}
}
