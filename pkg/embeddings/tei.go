package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultTEIURL = "http://127.0.0.1:8080"
	embedPath     = "/embed"
	infoPath      = "/info"
)

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

type teiInfo struct {
	ModelID string `json:"model_id"`
}

// teiEmbedder talks to a text-embeddings-inference server. One server serves
// exactly one model, so loading checks the served model id.
type teiEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

func newTEIEmbedder(ctx context.Context, client *http.Client, baseURL, model string) (*teiEmbedder, error) {
	if baseURL == "" {
		baseURL = defaultTEIURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+infoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build TEI info request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: TEI server at %s: %v", ErrBackendUnavailable, baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: TEI server at %s returned status %d", ErrBackendUnavailable, baseURL, resp.StatusCode)
	}

	var info teiInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode TEI info: %w", err)
	}
	if info.ModelID != model {
		return nil, fmt.Errorf("%w: TEI server at %s serves %q, not %q", ErrUnsupportedModel, baseURL, info.ModelID, model)
	}

	return &teiEmbedder{baseURL: baseURL, model: model, client: client}, nil
}

func (t *teiEmbedder) Model() string { return t.model }

func (t *teiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+embedPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("TEI server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
