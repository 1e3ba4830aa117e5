package chunker

import "errors"

var (
	// ErrInvalidChunkParams indicates a non-positive size, a negative overlap
	// or an overlap that is not smaller than the size.
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")

	// ErrDocumentNotFound indicates a missing path or a directory with no matching files.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnsupportedFormat indicates an unknown language or a file extension it does not cover.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
