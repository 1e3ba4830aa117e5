package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/envector-mcp/pkg/config"
)

// configFlag ties a command-line flag to a configuration key.
type configFlag struct {
	name  string
	key   string
	usage string
}

// configFlags are shared by every command that loads the configuration.
// Defaults live in the config package, so flags are registered zero-valued
// and only count when set.
var configFlags = []configFlag{
	{"transport", "server.transport", "Transport: stdio or streamable-http"},
	{"host", "server.host", "Host to listen on (streamable-http)"},
	{"port", "server.port", "Port to listen on (streamable-http)"},
	{"server-name", "server.name", "Server name reported to clients"},
	{"session-ttl", "server.session_ttl", "Idle timeout of an HTTP session"},
	{"request-timeout", "server.request_timeout", "Upper bound for a single tool call"},
	{"metrics", "server.metrics", "Expose Prometheus metrics at /metrics"},
	{"backend", "backend.type", "Vector engine: remote or embedded"},
	{"backend-endpoint", "backend.endpoint", "Remote engine host, host:port or https:// URL"},
	{"backend-port", "backend.port", "Remote engine port when the endpoint has none"},
	{"access-token", "backend.access_token", "Remote engine access token"},
	{"key-id", "backend.key_id", "Name of the key file under --key-path"},
	{"key-path", "backend.key_path", "Directory holding the key file"},
	{"eval-mode", "backend.eval_mode", "Default evaluation mode for new indexes: mm or rmp"},
	{"query-encrypted", "backend.query_encrypted", "Encrypt queries by default on new indexes"},
	{"backend-timeout", "backend.timeout", "Timeout of a single engine call"},
	{"max-retries", "backend.max_retries", "Retries for timeouts and unavailability (0 disables)"},
	{"data-path", "backend.data_path", "Database file of the embedded engine"},
	{"embedding-mode", "embedding.mode", "Embedding backend: sbert, huggingface or openai"},
	{"embedding-model", "embedding.model", "Default embedding model"},
	{"embedding-base-url", "embedding.base_url", "Base URL of the embedding backend"},
	{"embedding-timeout", "embedding.timeout", "Timeout of a single embedding request"},
	{"embedding-rate-limit", "embedding.rate_limit", "Embedding requests per second (0 is unlimited)"},
	{"chunk-size", "chunking.size", "Default chunk size in characters"},
	{"chunk-overlap", "chunking.overlap", "Default chunk overlap in characters"},
	{"otlp-endpoint", "telemetry.endpoint", "OTLP/HTTP collector for traces and metrics"},
}

// addConfigFlags registers configFlags on cmd with the type of each key's default.
func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	for _, f := range configFlags {
		switch config.DefaultValue(f.key).(type) {
		case bool:
			flags.Bool(f.name, false, f.usage)
		case int:
			flags.Int(f.name, 0, f.usage)
		case float64:
			flags.Float64(f.name, 0, f.usage)
		default:
			// durations are parsed by the config decoder
			flags.String(f.name, "", f.usage)
		}
	}
}

// loadConfig builds the configuration from flags, environment and the
// --config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	for _, f := range configFlags {
		flag := cmd.Flags().Lookup(f.name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(f.key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag --%s: %w", f.name, err)
		}
	}
	return config.Load(v, viper.GetString("config"))
}
