// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"dario.cat/mergo"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/chunker"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/transport/session"
	"github.com/stacklok/envector-mcp/pkg/transport/streamable"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
)

const (
	defaultServerName    = "envector_mcp_server"
	defaultHost          = "127.0.0.1"
	defaultPort          = 8000
	defaultBackendPort   = 50050
	defaultKeyID         = "mcp_key"
	defaultKeyPath       = "./keys"
	defaultTimeout       = 30 * time.Second
	defaultDataPath      = "envector.db"
	defaultSamplingRate  = 0.05
	defaultEmbeddingMode = embeddings.ModeSBERT
)

// Default returns a fully populated Config. It is the single source of
// defaults for viper and for EnsureDefaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:           defaultServerName,
			Host:           defaultHost,
			Port:           defaultPort,
			Transport:      types.TransportTypeStreamableHTTP.String(),
			SessionTTL:     session.DefaultTTL,
			RequestTimeout: streamable.DefaultRequestTimeout,
		},
		Backend: BackendConfig{
			Type:     BackendRemote,
			Endpoint: defaultHost,
			Port:     defaultBackendPort,
			KeyID:    defaultKeyID,
			KeyPath:  defaultKeyPath,
			EvalMode: string(backend.EvalModeMM),
			Timeout:  defaultTimeout,
			DataPath: defaultDataPath,
		},
		// the model is left empty and resolved from the mode after loading
		Embedding: EmbeddingConfig{
			Mode:    string(defaultEmbeddingMode),
			Timeout: defaultTimeout,
		},
		Chunking: ChunkingConfig{
			Size:    chunker.DefaultSize,
			Overlap: chunker.DefaultOverlap,
		},
		Telemetry: TelemetryConfig{
			SamplingRate: defaultSamplingRate,
		},
	}
}

// EnsureDefaults fills zero fields with defaults while preserving any value
// already set. Chunk overlap and sampling rate are kept as they are: zero is
// a valid setting for both and mergo cannot tell it from unset.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	overlap, sampling := c.Chunking.Overlap, c.Telemetry.SamplingRate
	if err := mergo.Merge(c, Default()); err != nil {
		logger.Warnf("Failed to apply configuration defaults: %v", err)
		return
	}
	c.Chunking.Overlap, c.Telemetry.SamplingRate = overlap, sampling
}
