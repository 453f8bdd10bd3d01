package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second, cfg.CycleInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.AppProbeTimeout())
	assert.Equal(t, time.Second, cfg.DeepProbeTimeout())
	assert.Equal(t, 2*time.Second, cfg.ResolveTimeout())
	assert.Equal(t, 5, cfg.ProcessRefreshCycles)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedwatch.yaml")
	data := []byte("cycle_ms: 2000\napp_timeout_ms: 250\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.CycleInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.AppProbeTimeout())
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, time.Second, cfg.DeepProbeTimeout())
}

func TestLoadClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedwatch.yaml")
	data := []byte("cycle_ms: 0\ndeep_timeout_ms: -5\nprocess_refresh_cycles: -1\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().CycleMillis, cfg.CycleMillis)
	assert.Equal(t, Default().DeepTimeoutMillis, cfg.DeepTimeoutMillis)
	assert.Equal(t, Default().ProcessRefreshCycles, cfg.ProcessRefreshCycles)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycle_ms: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
