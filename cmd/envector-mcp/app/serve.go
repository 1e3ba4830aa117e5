package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/config"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/mcp"
	"github.com/stacklok/envector-mcp/pkg/telemetry"
	"github.com/stacklok/envector-mcp/pkg/tools"
	"github.com/stacklok/envector-mcp/pkg/transport"
	"github.com/stacklok/envector-mcp/pkg/transport/session"
	"github.com/stacklok/envector-mcp/pkg/transport/types"
	"github.com/stacklok/envector-mcp/pkg/versions"
)

// newServeCmd creates the serve command for starting the MCP server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on the configured transport.

The vector engine is contacted once at startup; an unreachable engine or
missing credentials abort the command. The server runs until it receives
SIGINT or SIGTERM, or until stdin closes under the stdio transport.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addConfigFlags(cmd)
	return cmd
}

// runServe wires the server from cfg and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	logger.Infof("Starting %s %s (transport %s, backend %s)",
		cfg.Server.Name, versions.GetVersionInfo().Version, cfg.Server.Transport, cfg.Backend.Type)

	engine, err := newAdapter(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			logger.Warnf("Failed to close backend: %v", cerr)
		}
	}()
	adapter := backend.WithRetry(engine, cfg.RetryConfig())

	embedder, err := embeddings.NewManager(cfg.EmbeddingsConfig())
	if err != nil {
		return fmt.Errorf("failed to create embedding manager: %w", err)
	}

	provider, err := telemetry.NewProvider(ctx, cfg.TelemetryProviderConfig())
	if err != nil {
		return fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	defer func() {
		if serr := provider.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			logger.Warnf("Failed to shut down telemetry: %v", serr)
		}
	}()

	registry, err := tools.NewRegistry(
		tools.WithMeterProvider(provider.MeterProvider()),
		tools.WithTracerProvider(provider.TracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("failed to create tool registry: %w", err)
	}
	tools.NewToolset(adapter, embedder, tools.Defaults{
		EvalMode:       backend.EvalMode(cfg.Backend.EvalMode),
		QueryEncrypted: cfg.Backend.QueryEncrypted,
		Chunk:          cfg.ChunkParams(),
	}).Register(registry)
	handler := mcp.NewHandler(registry, cfg.Server.Name, versions.GetVersionInfo().Version)

	trConfig := transport.Config{
		Type:   cfg.TransportType(),
		Stdin:  stdin,
		Stdout: stdout,
	}
	if trConfig.Type == types.TransportTypeStreamableHTTP {
		sessions := session.NewManager(cfg.Server.SessionTTL, nil)
		defer sessions.Stop()

		trConfig.Sessions = sessions
		trConfig.HTTP = cfg.StreamableConfig()
		trConfig.HTTP.MetricsHandler = provider.PrometheusHandler()
		trConfig.HTTP.MeterProvider = provider.MeterProvider()
		trConfig.HTTP.TracerProvider = provider.TracerProvider()
	}

	tr, err := transport.NewFactory().Create(trConfig, handler)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	if err := tr.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// newAdapter connects the configured engine. Failures here abort startup.
func newAdapter(ctx context.Context, cfg *config.Config) (backend.Adapter, error) {
	switch cfg.Backend.Type {
	case config.BackendEmbedded:
		adapter, err := backend.NewEmbedded(cfg.Backend.DataPath, cfg.Backend.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded engine: %w", err)
		}
		return adapter, nil
	default:
		adapter, err := backend.NewRemote(ctx, cfg.RemoteConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to engine: %w", err)
		}
		return adapter, nil
	}
}
