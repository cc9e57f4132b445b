package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NETIO_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Server.ListenBacklog)
	assert.Equal(t, "5s", cfg.Server.CloseTimeout)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Admin.Host)
	assert.Equal(t, 8088, cfg.Admin.Port)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  listen_backlog: 64
  close_timeout: "2s"

admin:
  enabled: true
  host: "0.0.0.0"
  port: 9090

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Server.ListenBacklog)
	assert.Equal(t, "2s", cfg.Server.CloseTimeout)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "0.0.0.0", cfg.Admin.Host)
	assert.Equal(t, 9090, cfg.Admin.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_backlog: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidAdminPort(t *testing.T) {
	content := `
admin:
  enabled: true
  port: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeDefaultsListenBacklog(t *testing.T) {
	content := `
server:
  listen_backlog: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Server.ListenBacklog)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NETIO_ADMIN_ENABLED", "true")
	t.Setenv("NETIO_ADMIN_HOST", "192.168.1.1")
	t.Setenv("NETIO_ADMIN_PORT", "8053")
	t.Setenv("NETIO_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "192.168.1.1", cfg.Admin.Host)
	assert.Equal(t, 8053, cfg.Admin.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
