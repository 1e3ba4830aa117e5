package embeddings

import (
	"fmt"
	"strings"
)

// Mode selects the embedding backend strategy.
type Mode string

const (
	// ModeSBERT serves sentence-transformers models through a
	// text-embeddings-inference compatible HTTP server.
	ModeSBERT Mode = "sbert"

	// ModeHuggingFace uses the Hugging Face Inference API feature-extraction pipeline.
	ModeHuggingFace Mode = "huggingface"

	// ModeOpenAI uses the OpenAI embeddings API.
	ModeOpenAI Mode = "openai"
)

// Modes lists the supported modes in a stable order.
var Modes = []Mode{ModeSBERT, ModeHuggingFace, ModeOpenAI}

// String returns the canonical mode name.
func (m Mode) String() string { return string(m) }

// ParseMode resolves a mode name or one of its aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sbert", "sentence_transformer", "sentence-transformer", "tei":
		return ModeSBERT, nil
	case "huggingface", "hf":
		return ModeHuggingFace, nil
	case "openai":
		return ModeOpenAI, nil
	default:
		return "", fmt.Errorf("%w: unknown embedding mode %q", ErrUnsupportedModel, s)
	}
}

// DefaultModel returns the model used when a caller selects a mode without naming a model.
func (m Mode) DefaultModel() string {
	if m == ModeOpenAI {
		return "text-embedding-3-small"
	}
	return "sentence-transformers/all-MiniLM-L6-v2"
}
