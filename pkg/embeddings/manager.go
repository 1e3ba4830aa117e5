// Package embeddings turns text into fixed-dimension vectors using one of
// several pluggable backends.
package embeddings

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=manager.go Provider

// Embedder is a loaded model: text in, vectors out.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Provider embeds texts with a model served by the selected mode.
type Provider interface {
	Embed(ctx context.Context, texts []string, model string, mode Mode) ([][]float32, error)
}

// Endpoint is where a mode's backend lives and how to authenticate to it.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Config holds configuration for the embedding manager.
type Config struct {
	// DefaultMode is used when a call does not name a mode.
	DefaultMode Mode

	// DefaultModel is used when a call on the default mode does not name a model.
	DefaultModel string

	// Endpoints overrides the base URL and credentials per mode.
	Endpoints map[Mode]Endpoint

	// Timeout bounds each request to a remote backend.
	Timeout time.Duration

	// RateLimit caps outbound embedding requests per second. Zero disables it.
	RateLimit float64

	// HTTPClient is used by the HTTP based modes. Defaults to a client with Timeout.
	HTTPClient *http.Client
}

// Manager implements Provider on top of a process-wide model cache.
type Manager struct {
	config  Config
	cache   *Cache
	limiter *rate.Limiter
	client  *http.Client
}

// NewManager creates a new embedding manager.
func NewManager(config Config) (*Manager, error) {
	if config.DefaultMode == "" {
		config.DefaultMode = ModeSBERT
	}
	if _, err := ParseMode(string(config.DefaultMode)); err != nil {
		return nil, err
	}
	if config.DefaultModel == "" {
		config.DefaultModel = config.DefaultMode.DefaultModel()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	m := &Manager{
		config: config,
		client: config.HTTPClient,
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: config.Timeout}
	}
	if config.RateLimit > 0 {
		burst := int(math.Max(1, math.Ceil(config.RateLimit)))
		m.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	m.cache = NewCache(m.load)
	return m, nil
}

// Embed returns one L2-normalized vector per text. An empty input returns an
// empty result without touching any backend.
func (m *Manager) Embed(ctx context.Context, texts []string, model string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	key, err := m.resolve(model, mode)
	if err != nil {
		return nil, err
	}

	embedder, err := m.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for embedding rate limit: %w", err)
		}
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts with %s: %w", len(texts), key, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding backend %s returned %d vectors for %d texts", key, len(vectors), len(texts))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("embedding backend %s returned vector %d with dimension %d, expected %d",
				key, i, len(v), dim)
		}
		normalize(v)
	}

	logger.Debugf("Embedded %d texts with %s (dimension %d)", len(texts), key, dim)
	return vectors, nil
}

// loaded reports how many models are currently cached.
func (m *Manager) loaded() int {
	return m.cache.Len()
}

func (m *Manager) resolve(model string, mode Mode) (Key, error) {
	if mode == "" {
		mode = m.config.DefaultMode
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return Key{}, err
	}
	if model == "" {
		if mode == m.config.DefaultMode {
			model = m.config.DefaultModel
		} else {
			model = mode.DefaultModel()
		}
	}
	return Key{Mode: mode, Model: model}, nil
}

func (m *Manager) load(ctx context.Context, key Key) (Embedder, error) {
	// The load is shared by every caller waiting on this key, so it must not
	// be cut short by the first caller going away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.Timeout)
	defer cancel()

	endpoint := m.config.Endpoints[key.Mode]
	logger.Infof("Loading embedding model %s", key)

	var (
		e   Embedder
		err error
	)
	switch key.Mode {
	case ModeSBERT:
		e, err = newTEIEmbedder(ctx, m.client, endpoint.BaseURL, key.Model)
	case ModeHuggingFace:
		e, err = newHuggingFaceEmbedder(m.client, endpoint, key.Model)
	case ModeOpenAI:
		e, err = newOpenAIEmbedder(endpoint, key.Model, m.config.Timeout)
	default:
		err = fmt.Errorf("%w: unknown embedding mode %q", ErrUnsupportedModel, key.Mode)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// normalize scales v to unit length in place. Zero vectors are left untouched.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
