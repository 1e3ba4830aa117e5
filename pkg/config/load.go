package config

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/envector-mcp/pkg/embeddings"
)

// EnvBindings maps every config key to its environment variable.
var EnvBindings = map[string]string{
	"server.name":             "MCP_SERVER_NAME",
	"server.host":             "MCP_SERVER_HOST",
	"server.port":             "MCP_SERVER_PORT",
	"server.transport":        "MCP_TRANSPORT",
	"server.session_ttl":      "MCP_SESSION_TTL",
	"server.request_timeout":  "MCP_REQUEST_TIMEOUT",
	"server.metrics":          "MCP_METRICS_ENABLED",
	"backend.type":            "ENVECTOR_BACKEND",
	"backend.endpoint":        "ENVECTOR_ENDPOINT",
	"backend.port":            "ENVECTOR_PORT",
	"backend.access_token":    "ENVECTOR_ACCESS_TOKEN",
	"backend.key_id":          "ENVECTOR_KEY_ID",
	"backend.key_path":        "ENVECTOR_KEY_PATH",
	"backend.eval_mode":       "ENVECTOR_EVAL_MODE",
	"backend.query_encrypted": "ENVECTOR_QUERY_ENCRYPTED",
	"backend.timeout":         "ENVECTOR_TIMEOUT",
	"backend.max_retries":     "ENVECTOR_MAX_RETRIES",
	"backend.data_path":       "ENVECTOR_DATA_PATH",
	"embedding.mode":          "EMBEDDING_MODE",
	"embedding.model":         "EMBEDDING_MODEL",
	"embedding.base_url":      "EMBEDDING_BASE_URL",
	"embedding.api_key":       "EMBEDDING_API_KEY",
	"embedding.timeout":       "EMBEDDING_TIMEOUT",
	"embedding.rate_limit":    "EMBEDDING_RATE_LIMIT",
	"chunking.size":           "CHUNK_SIZE",
	"chunking.overlap":        "CHUNK_OVERLAP",
	"telemetry.endpoint":      "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.insecure":      "OTEL_EXPORTER_OTLP_INSECURE",
	"telemetry.sampling_rate": "OTEL_TRACES_SAMPLER_ARG",
}

// NewViper returns a viper instance with every default and environment
// binding registered. Callers bind their flags on top, which gives the
// precedence flag > env > file > default.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(*Default()))
	for key, env := range EnvBindings {
		// BindEnv only fails without a key
		_ = v.BindEnv(key, env)
	}
	return v
}

// DefaultValue returns the built-in default for key, ignoring the
// environment. It is nil for unknown keys.
func DefaultValue(key string) any {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(*Default()))
	return v.Get(key)
}

// setDefaults walks the struct and registers each leaf under its
// mapstructure path.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := range t.NumField() {
		key := t.Field(i).Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		field := val.Field(i)
		if field.Kind() == reflect.Struct {
			setDefaults(v, key, field)
			continue
		}
		v.SetDefault(key, field.Interface())
	}
}

// Load reads the optional config file at path, resolves every layer and
// validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.EnsureDefaults()
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(c *Config) {
	c.Server.Transport = strings.ToLower(strings.TrimSpace(c.Server.Transport))
	c.Backend.Type = strings.ToLower(strings.TrimSpace(c.Backend.Type))
	c.Backend.EvalMode = strings.ToLower(strings.TrimSpace(c.Backend.EvalMode))
	c.Embedding.Mode = strings.ToLower(strings.TrimSpace(c.Embedding.Mode))
	if c.Embedding.Model == "" {
		c.Embedding.Model = embeddings.Mode(c.Embedding.Mode).DefaultModel()
	}
}

// WriteYAML writes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
