package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout.Std())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Sync.ScanTimeout.Std())
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/vault-test
device_name: test-desktop
idle_timeout: 5m
log:
  level: debug
  json: true
sync:
  scan_timeout: 10s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vault-test", cfg.DataDir)
	assert.Equal(t, "test-desktop", cfg.DeviceName)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 10*time.Second, cfg.Sync.ScanTimeout.Std())
	// Unspecified fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Sync.ChunkAckTimeout.Std())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
