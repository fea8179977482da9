package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestNewManager_AppliesLogDefaults(t *testing.T) {
	path := writeConfig(t, `
jobs: 4
log:
  level: ""
`)

	cm, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, 4, cfg.Jobs)
	assert.True(t, cfg.Log.Console.Enabled, "console should default on when nothing else is enabled")
	assert.Equal(t, "console", cfg.Log.Console.Format)
	assert.Equal(t, "text", cfg.Log.File.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestNewManager_RespectsExplicitFileLogging(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  file:
    enabled: true
    path: /tmp/build.log
`)

	cm, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.False(t, cfg.Log.Console.Enabled, "console was never set, and file is enabled, so it should not be forced on")
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestNewManager_UnknownFieldFails(t *testing.T) {
	path := writeConfig(t, `
jobs: 2
bogus_field: true
`)

	_, err := NewManager(path, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load initial config")
}

func TestNewManager_MissingFileFails(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), zaptest.NewLogger(t))
	require.Error(t, err)
}
