// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/chunker"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
)

// Dispatch errors. These never reach a handler.
var (
	// ErrUnknownTool indicates the called tool is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingParameter indicates a required parameter was omitted.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrInvalidParameterType indicates a parameter has the wrong JSON type.
	ErrInvalidParameterType = errors.New("invalid parameter type")

	// ErrUnknownParameter indicates an argument the tool does not declare.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrInvalidParameter indicates a well-typed parameter with an unusable value,
	// such as mismatched array lengths.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ValidationError is a parameter validation failure.
type ValidationError struct {
	Param  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Param)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Param, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidParam(param, format string, args ...any) error {
	return &ValidationError{Param: param, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidParameter}
}

// Error codes carried in error results.
const (
	CodeUnknownTool          = "unknown_tool"
	CodeMissingParameter     = "missing_parameter"
	CodeInvalidParameterType = "invalid_parameter_type"
	CodeUnknownParameter     = "unknown_parameter"
	CodeInvalidParameter     = "invalid_parameter"
	CodeInvalidChunkParams   = "invalid_chunk_params"
	CodeIndexNotFound        = "index_not_found"
	CodeIndexAlreadyExists   = "index_already_exists"
	CodeInvalidDimension     = "invalid_dimension"
	CodeDimensionMismatch    = "dimension_mismatch"
	CodeBackendTimeout       = "backend_timeout"
	CodeBackendUnavailable   = "backend_unavailable"
	CodeUnsupportedModel     = "unsupported_model"
	CodeDocumentNotFound     = "document_not_found"
	CodeUnsupportedFormat    = "unsupported_format"
	CodeMissingCredentials   = "missing_credentials"
	CodeCancelled            = "cancelled"
	CodeInternal             = "internal_error"
)

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownTool, CodeUnknownTool},
	{ErrMissingParameter, CodeMissingParameter},
	{ErrInvalidParameterType, CodeInvalidParameterType},
	{ErrUnknownParameter, CodeUnknownParameter},
	{ErrInvalidParameter, CodeInvalidParameter},
	{chunker.ErrInvalidChunkParams, CodeInvalidChunkParams},
	{backend.ErrIndexNotFound, CodeIndexNotFound},
	{backend.ErrIndexAlreadyExists, CodeIndexAlreadyExists},
	{backend.ErrInvalidDimension, CodeInvalidDimension},
	{backend.ErrDimensionMismatch, CodeDimensionMismatch},
	{backend.ErrBackendTimeout, CodeBackendTimeout},
	{backend.ErrBackendUnavailable, CodeBackendUnavailable},
	{embeddings.ErrBackendUnavailable, CodeBackendUnavailable},
	{embeddings.ErrUnsupportedModel, CodeUnsupportedModel},
	{chunker.ErrDocumentNotFound, CodeDocumentNotFound},
	{chunker.ErrUnsupportedFormat, CodeUnsupportedFormat},
	{backend.ErrMissingCredentials, CodeMissingCredentials},
	{backend.ErrInvalidArgument, CodeInvalidParameter},
	{context.DeadlineExceeded, CodeBackendTimeout},
	{context.Canceled, CodeCancelled},
}

// ErrorCode returns the stable code reported for err.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
