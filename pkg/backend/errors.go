// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by every Adapter implementation.
// These errors should be checked using errors.Is().

var (
	// ErrIndexNotFound indicates the named index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexAlreadyExists indicates a create collided with an existing index.
	ErrIndexAlreadyExists = errors.New("index already exists")

	// ErrInvalidDimension indicates a non-positive index dimension.
	ErrInvalidDimension = errors.New("invalid dimension")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	// Returned wrapped in a *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrBackendTimeout indicates the call did not finish within the configured timeout.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrBackendUnavailable indicates the engine could not be reached or refused the credentials.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidArgument indicates a malformed call, such as a non-positive top_k.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingCredentials indicates neither an access token nor a key file was found.
	ErrMissingCredentials = errors.New("missing backend credentials")
)

// DimensionMismatchError lists the records whose vectors do not match the index.
type DimensionMismatchError struct {
	Index    string
	Expected int
	// Rejected holds the positions of the offending records in the submitted batch.
	Rejected []int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: index %q expects dimension %d, rejected records %s",
		ErrDimensionMismatch, e.Index, e.Expected, formatIndices(e.Rejected))
}

func (*DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// InsertError reports a batch that failed as a whole. The engine gives no
// per-record detail, so every record in the batch is listed as rejected.
type InsertError struct {
	Index    string
	Rejected []int
	Err      error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert into %q failed, rejected records %s: %v", e.Index, formatIndices(e.Rejected), e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// RejectedRecords returns the batch positions reported by an insert failure, if any.
func RejectedRecords(err error) []int {
	var dm *DimensionMismatchError
	if errors.As(err, &dm) {
		return dm.Rejected
	}
	var ie *InsertError
	if errors.As(err, &ie) {
		return ie.Rejected
	}
	return nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func formatIndices(idx []int) string {
	const limit = 20
	parts := make([]string, 0, min(len(idx), limit))
	for i, v := range idx {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(idx)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
