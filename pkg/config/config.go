// Package config defines the server configuration and loads it from flags,
// environment variables and an optional YAML file.
package config

import (
	"time"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/chunker"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/telemetry"
	"github.com/stacklok/envector-mcp/pkg/transport/streamable"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
	"github.com/stacklok/envector-mcp/pkg/versions"
)

// Backend types.
const (
	BackendRemote   = "remote"
	BackendEmbedded = "embedded"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig configures the MCP server and its transport.
type ServerConfig struct {
	Name           string        `mapstructure:"name" yaml:"name"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Transport      string        `mapstructure:"transport" yaml:"transport"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Metrics        bool          `mapstructure:"metrics" yaml:"metrics"`
}

// BackendConfig configures the vector engine.
type BackendConfig struct {
	Type           string        `mapstructure:"type" yaml:"type"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	Port           int           `mapstructure:"port" yaml:"port"`
	AccessToken    string        `mapstructure:"access_token" yaml:"access_token,omitempty"`
	KeyID          string        `mapstructure:"key_id" yaml:"key_id"`
	KeyPath        string        `mapstructure:"key_path" yaml:"key_path"`
	EvalMode       string        `mapstructure:"eval_mode" yaml:"eval_mode"`
	QueryEncrypted bool          `mapstructure:"query_encrypted" yaml:"query_encrypted"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	DataPath       string        `mapstructure:"data_path" yaml:"data_path"`
}

// EmbeddingConfig configures the default embedding backend.
type EmbeddingConfig struct {
	Mode      string        `mapstructure:"mode" yaml:"mode"`
	Model     string        `mapstructure:"model" yaml:"model"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ChunkingConfig holds the default chunk window.
type ChunkingConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Overlap int `mapstructure:"overlap" yaml:"overlap"`
}

// TelemetryConfig configures OTLP export. Prometheus metrics are switched by
// server.metrics.
type TelemetryConfig struct {
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Insecure     bool    `mapstructure:"insecure" yaml:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// TransportType returns the parsed transport. Call Validate first.
func (c *Config) TransportType() types.TransportType {
	t, _ := types.ParseTransportType(c.Server.Transport)
	return t
}

// RemoteConfig returns the settings for backend.NewRemote.
func (c *Config) RemoteConfig() backend.RemoteConfig {
	return backend.RemoteConfig{
		Endpoint:    c.Backend.Endpoint,
		Port:        c.Backend.Port,
		AccessToken: c.Backend.AccessToken,
		KeyID:       c.Backend.KeyID,
		KeyPath:     c.Backend.KeyPath,
		Timeout:     c.Backend.Timeout,
	}
}

// RetryConfig returns the settings for backend.WithRetry.
func (c *Config) RetryConfig() backend.RetryConfig {
	return backend.RetryConfig{MaxRetries: c.Backend.MaxRetries}
}

// EmbeddingsConfig returns the settings for embeddings.NewManager. The base
// URL and API key apply to the default mode only.
func (c *Config) EmbeddingsConfig() embeddings.Config {
	mode := embeddings.Mode(c.Embedding.Mode)
	cfg := embeddings.Config{
		DefaultMode:  mode,
		DefaultModel: c.Embedding.Model,
		Timeout:      c.Embedding.Timeout,
		RateLimit:    c.Embedding.RateLimit,
	}
	if c.Embedding.BaseURL != "" || c.Embedding.APIKey != "" {
		cfg.Endpoints = map[embeddings.Mode]embeddings.Endpoint{
			mode: {BaseURL: c.Embedding.BaseURL, APIKey: c.Embedding.APIKey},
		}
	}
	return cfg
}

// ChunkParams returns the default chunk window.
func (c *Config) ChunkParams() chunker.Params {
	return chunker.Params{Size: c.Chunking.Size, Overlap: c.Chunking.Overlap}
}

// StreamableConfig returns the HTTP transport settings.
func (c *Config) StreamableConfig() streamable.Config {
	return streamable.Config{
		Host:           c.Server.Host,
		Port:           c.Server.Port,
		RequestTimeout: c.Server.RequestTimeout,
	}
}

// TelemetryProviderConfig returns the settings for telemetry.NewProvider.
func (c *Config) TelemetryProviderConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Server.Metrics
	tc.ServiceName = c.Server.Name
	tc.ServiceVersion = versions.GetVersionInfo().Version
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SamplingRate = c.Telemetry.SamplingRate
	return tc
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Backend.AccessToken != "" {
		out.Backend.AccessToken = redacted
	}
	if out.Embedding.APIKey != "" {
		out.Embedding.APIKey = redacted
	}
	return &out
}

const redacted = "<redacted>"
