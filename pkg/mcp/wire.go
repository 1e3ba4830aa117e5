package mcp

import (
	"encoding/json"

	"golang.org/x/exp/jsonrpc2"
)

type wireErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wireErrorResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Error   wireErrorBody `json:"error"`
}

// EncodeError serializes an error response. Unlike jsonrpc2.EncodeMessage it
// keeps "id": null when the request id could not be read.
func EncodeError(id jsonrpc2.ID, code int, message string) ([]byte, error) {
	return json.Marshal(wireErrorResponse{
		JSONRPC: "2.0",
		ID:      id.Raw(),
		Error:   wireErrorBody{Code: code, Message: message},
	})
}
