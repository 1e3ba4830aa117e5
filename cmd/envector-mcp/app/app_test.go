package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/envector-mcp/pkg/config"
	"github.com/stacklok/envector-mcp/pkg/versions"
)

// execute runs the CLI with args. The root command binds package-level viper
// keys, so these tests do not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.GetVersionInfo(), info)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "envector-mcp "))
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "validate", "--backend", "embedded", "--transport", "stdio")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid (transport stdio, backend embedded")

	_, err = execute(t, "validate", "--chunk-size", "100", "--chunk-overlap", "100")
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "validate", "--eval-mode", "fast")
	assert.ErrorContains(t, err, "backend.eval_mode")
}

func TestConfigShowCmd(t *testing.T) {
	out, err := execute(t, "config", "show", "--access-token", "s3cr3t", "--session-ttl", "2m", "--port", "9001")
	require.NoError(t, err)
	assert.Contains(t, out, "access_token: <redacted>")
	assert.NotContains(t, out, "s3cr3t")
	assert.Contains(t, out, "session_ttl: 2m0s")
	assert.Contains(t, out, "port: 9001")
}

func TestRunServe_StdioEmbedded(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = "stdio"
	cfg.Backend.Type = config.BackendEmbedded
	cfg.Backend.DataPath = filepath.Join(t.TempDir(), "engine.db")
	require.NoError(t, cfg.Validate())

	script := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"t","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"create_index","arguments":{"index_name":"docs","dimension":4}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_index_list"}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runServe(context.Background(), cfg, strings.NewReader(script), &out))

	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], cfg.Server.Name)
	assert.Contains(t, lines[1], `\"ok\":true`)
	assert.Contains(t, lines[2], `docs`)
}

func TestRunServe_RemoteWithoutKeysFailsFast(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.KeyPath = t.TempDir()

	err := runServe(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to engine")
}
