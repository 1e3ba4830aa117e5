package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var openAIModels = []string{
	openai.EmbeddingModelTextEmbedding3Small,
	openai.EmbeddingModelTextEmbedding3Large,
	openai.EmbeddingModelTextEmbeddingAda002,
}

type openAIEmbedder struct {
	client openai.Client
	model  string
}

// newOpenAIEmbedder builds an OpenAI client. A custom base URL points at an
// OpenAI compatible server, in which case any model name is accepted.
func newOpenAIEmbedder(endpoint Endpoint, model string, timeout time.Duration) (*openAIEmbedder, error) {
	key := endpoint.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is not configured", ErrBackendUnavailable)
	}
	if endpoint.BaseURL == "" && !slices.Contains(openAIModels, model) {
		return nil, fmt.Errorf("%w: %q is not an OpenAI embedding model", ErrUnsupportedModel, model)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		// retries are a caller decision
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if endpoint.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(endpoint.BaseURL))
	}

	return &openAIEmbedder{client: openai.NewClient(opts...), model: model}, nil
}

func (o *openAIEmbedder) Model() string { return o.model }

func (o *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          o.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedModel, o.model, err)
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			return nil, fmt.Errorf("OpenAI embeddings request failed: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		out[d.Index] = v
	}
	return out, nil
}
