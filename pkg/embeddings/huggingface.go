package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const defaultHuggingFaceURL = "https://api-inference.huggingface.co"

type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// huggingFaceEmbedder calls the Inference API feature-extraction pipeline.
type huggingFaceEmbedder struct {
	url    string
	token  string
	model  string
	client *http.Client
}

func newHuggingFaceEmbedder(client *http.Client, endpoint Endpoint, model string) (*huggingFaceEmbedder, error) {
	token := endpoint.APIKey
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: Hugging Face token is not configured", ErrBackendUnavailable)
	}

	base := endpoint.BaseURL
	if base == "" {
		base = defaultHuggingFaceURL
	}
	u, err := url.JoinPath(base, "pipeline", "feature-extraction", model)
	if err != nil {
		return nil, fmt.Errorf("invalid Hugging Face base URL %q: %w", base, err)
	}

	return &huggingFaceEmbedder{url: u, token: token, model: model, client: client}, nil
}

func (h *huggingFaceEmbedder) Model() string { return h.model }

func (h *huggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(hfRequest{Inputs: texts, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %q is not served by the Hugging Face Inference API", ErrUnsupportedModel, h.model)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: Hugging Face returned status %d", ErrBackendUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("Hugging Face returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return decodeFeatures(raw)
}

// decodeFeatures accepts pooled output ([][]float32) or token level output
// ([][][]float32). For token level output the first ([CLS]) token is used.
func decodeFeatures(raw []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(raw, &pooled); err == nil {
		return pooled, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode feature-extraction response: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, t := range tokens {
		if len(t) == 0 {
			return nil, fmt.Errorf("feature-extraction returned no tokens for input %d", i)
		}
		out[i] = t[0]
	}
	return out, nil
}
