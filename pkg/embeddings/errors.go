package embeddings

import "errors"

var (
	// ErrUnsupportedModel is returned when the selected mode cannot resolve the model name.
	ErrUnsupportedModel = errors.New("unsupported embedding model")

	// ErrBackendUnavailable is returned when the embedding backend cannot be reached
	// or is missing the credentials it needs.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
)
