package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8420, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "claude", cfg.Engine.Command)
	assert.Equal(t, 100, cfg.Engine.MaxBufferMB)
}

func TestLoadFromBytes(t *testing.T) {
	yamlContent := []byte(`
host: 0.0.0.0
port: 9000
db_path: /tmp/relay-test.db
auth_token: secret
log_level: debug
engine:
  command: /usr/local/bin/claude
  max_buffer_mb: 50
`)

	cfg, err := LoadFromBytes(yamlContent)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/tmp/relay-test.db", cfg.DBPath)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Engine.Command)
	assert.Equal(t, 50, cfg.Engine.MaxBufferMB)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("port: 7777\n"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "claude", cfg.Engine.Command)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, 8420, cfg.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_PORT", "6543")
	t.Setenv("RELAY_AUTH_TOKEN", "env-token")
	t.Setenv("RELAY_ENGINE_COMMAND", "mock-engine")

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 1111\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file.
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "env-token", cfg.AuthToken)
	assert.Equal(t, "mock-engine", cfg.Engine.Command)
}
