package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HTTP_PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "gemini", cfg.AgentCommand)
	assert.Equal(t, 5*time.Second, cfg.CancelGrace)
	assert.False(t, cfg.AbortOnDisconnect)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("http_port: 9000\nagent_command: claude\ncancel_grace: 2s\nabort_on_disconnect: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("AGENT_COMMAND", "my-agent")
	t.Setenv("EXEC_TIMEOUT_MS", "1500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "my-agent", cfg.AgentCommand, "env overrides file")
	assert.Equal(t, 2*time.Second, cfg.CancelGrace)
	assert.True(t, cfg.AbortOnDisconnect)
	assert.Equal(t, 1500*time.Millisecond, cfg.ExecTimeout)
}

func TestLoadInvalidEnvIgnored(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("AGENT_SANDBOX", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.False(t, cfg.AgentSandbox)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SinkBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AgentCommand = ""
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
