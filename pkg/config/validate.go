package config

import (
	"errors"
	"fmt"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
	"github.com/stacklok/envector-mcp/pkg/validation"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, err := types.ParseTransportType(c.Server.Transport); err != nil {
		add("server.transport %q must be stdio or streamable-http", c.Server.Transport)
	}
	if !validPort(c.Server.Port) {
		add("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.SessionTTL <= 0 {
		add("server.session_ttl must be positive, got %s", c.Server.SessionTTL)
	}
	if c.Server.RequestTimeout <= 0 {
		add("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}

	switch c.Backend.Type {
	case BackendRemote:
		if !validPort(c.Backend.Port) {
			add("backend.port must be in 1..65535, got %d", c.Backend.Port)
		}
		if c.Backend.Endpoint == "" {
			add("backend.endpoint is required for the remote backend")
		}
		if c.Backend.AccessToken == "" && (c.Backend.KeyID == "" || c.Backend.KeyPath == "") {
			add("the remote backend needs backend.access_token or both backend.key_id and backend.key_path")
		}
	case BackendEmbedded:
		if c.Backend.DataPath == "" {
			add("backend.data_path is required for the embedded backend")
		}
	default:
		add("backend.type %q must be %s or %s", c.Backend.Type, BackendRemote, BackendEmbedded)
	}
	if _, err := backend.ParseEvalMode(c.Backend.EvalMode); err != nil {
		add("backend.eval_mode: %v", err)
	}
	if c.Backend.MaxRetries < 0 {
		add("backend.max_retries must not be negative, got %d", c.Backend.MaxRetries)
	}

	if _, err := embeddings.ParseMode(c.Embedding.Mode); err != nil {
		add("embedding.mode: %v", err)
	}
	if c.Embedding.BaseURL != "" {
		if err := validation.ValidateBaseURL(c.Embedding.BaseURL); err != nil {
			add("embedding.base_url: %v", err)
		}
	}
	if c.Embedding.RateLimit < 0 {
		add("embedding.rate_limit must not be negative, got %g", c.Embedding.RateLimit)
	}

	if err := c.ChunkParams().Validate(); err != nil {
		add("chunking: %v", err)
	}
	if err := c.TelemetryProviderConfig().Validate(); err != nil {
		add("telemetry: %v", err)
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
