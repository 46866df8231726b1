package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, "127.0.0.1:35035", cfg.HTTP.Address)
	assert.Equal(t, 16, cfg.HTTP.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "./deskd.db", cfg.Storage.Path)
	assert.True(t, cfg.Watch.Persistent)
	assert.True(t, cfg.Watch.IgnoreInitial)
	assert.False(t, cfg.Watch.UsePolling)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.StabilityThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.PollInterval)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
env: prod
http:
  address: 0.0.0.0:9000
  max_connections: 2
  request_timeout: 5s
  allowed_origins:
    - app://deskd
storage:
  driver: sqlite
  path: /var/lib/deskd/state.db
watch:
  root: /srv/docs
  ignore:
    - "*.bak"
    - cache/**
  persistent: false
  ignore_initial: false
  use_polling: true
  stability_threshold: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.Address)
	assert.Equal(t, 2, cfg.HTTP.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, []string{"app://deskd"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/deskd/state.db", cfg.Storage.Path)
	assert.Equal(t, "/srv/docs", cfg.Watch.Root)
	assert.Equal(t, []string{"*.bak", "cache/**"}, cfg.Watch.Ignore)
	assert.False(t, cfg.Watch.Persistent)
	assert.False(t, cfg.Watch.IgnoreInitial)
	assert.True(t, cfg.Watch.UsePolling)
	assert.Equal(t, time.Second, cfg.Watch.StabilityThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "env: local\nstorage:\n  path: /from/file.db\n")
	t.Setenv("STORAGE_PATH", "/from/env.db")
	t.Setenv("WATCH_IGNORE", "a/**,b/**")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Storage.Path)
	assert.Equal(t, []string{"a/**", "b/**"}, cfg.Watch.Ignore)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("WATCH_ROOT", "/tmp/project")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, "/tmp/project", cfg.Watch.Root)
}

func TestLoad_BoolsDefaultOnButCanBeTurnedOff(t *testing.T) {
	cfg, err := Load(writeConfig(t, "watch:\n  persistent: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Watch.Persistent)
	assert.True(t, cfg.Watch.IgnoreInitial)

	t.Setenv("WATCH_IGNORE_INITIAL", "false")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Watch.Persistent)
	assert.False(t, cfg.Watch.IgnoreInitial)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)

	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/deskd.yaml")
	assert.Equal(t, "/flag.yaml", Path("/flag.yaml"))
	assert.Equal(t, "/etc/deskd.yaml", Path(""))
}
