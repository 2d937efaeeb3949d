package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	manager := NewManager(nil)
	cfg := manager.Get()

	assert.Equal(t, 3.0, cfg.Discovery.TimeoutSeconds)
	assert.True(t, cfg.Streams.SceneCamera)
	assert.False(t, cfg.Streams.Gaze)
	assert.Equal(t, 100, cfg.Streams.SubscriberQueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  hostname: tg03b-080200000000
  use_ip: true
discovery:
  timeout_seconds: 5
streams:
  gaze: true
logging:
  level: debug
`), 0o644))

	manager := NewManager(nil)
	require.NoError(t, manager.Load(path))
	cfg := manager.Get()

	assert.Equal(t, "tg03b-080200000000", cfg.Device.Hostname)
	assert.True(t, cfg.Device.UseIP)
	assert.Equal(t, 5.0, cfg.Discovery.TimeoutSeconds)
	assert.True(t, cfg.Streams.Gaze)
	assert.True(t, cfg.Streams.SceneCamera, "Unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  timeout_seconds: -1
`), 0o644))

	manager := NewManager(nil)
	err := manager.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_seconds")

	assert.Equal(t, 3.0, manager.Get().Discovery.TimeoutSeconds,
		"A failed load keeps the previous configuration")
}

func TestLoadMissingFileFails(t *testing.T) {
	manager := NewManager(nil)
	require.Error(t, manager.Load(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, WriteDefault(path))

	manager := NewManager(nil)
	require.NoError(t, manager.Load(path))
	assert.Equal(t, Default(), manager.Get())
}
