// Package config loads the bootstrap configuration for a Workflow run from
// a YAML file, applying the same defaulting/validation shape the teacher's
// EGConfigManager uses for its edge-gateway config.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/edgecomet/buildgraph/internal/common/configtypes"
	"github.com/edgecomet/buildgraph/internal/common/yamlutil"
)

// Type aliases so callers can spell these through the config package
// without importing configtypes directly, matching the teacher's
// "type aliases for backward compatibility" convention in config.go.
type (
	WorkflowConfig = configtypes.WorkflowConfig
	LogConfig      = configtypes.LogConfig
	ForceConfig    = configtypes.ForceConfig
)

// Manager owns a loaded WorkflowConfig and the path it was read from.
type Manager struct {
	config     *WorkflowConfig
	configPath string
	logger     *zap.Logger
}

// NewManager loads configPath and returns a Manager, or an error wrapping
// the load failure.
func NewManager(configPath string, logger *zap.Logger) (*Manager, error) {
	cm := &Manager{configPath: configPath, logger: logger}
	if err := cm.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	return cm, nil
}

// LoadConfig (re)reads the config file, applying defaults afterward.
func (cm *Manager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %q: %w", cm.configPath, err)
	}

	var cfg WorkflowConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config %q: %w", cm.configPath, err)
	}

	cm.config = &cfg
	cm.applyDefaults()

	if cm.logger != nil {
		cm.logger.Debug("loaded workflow config",
			zap.String("path", cm.configPath),
			zap.Int("jobs", cm.config.Jobs),
		)
	}
	return nil
}

// GetConfig returns the currently loaded configuration.
func (cm *Manager) GetConfig() *WorkflowConfig {
	return cm.config
}

// applyDefaults fills in zero-valued fields the way the teacher's
// EGConfigManager.applyDefaults does for its own config.
func (cm *Manager) applyDefaults() {
	if cm.config.Jobs <= 0 {
		cm.config.Jobs = 0 // passed on as workflow.Options.Jobs, 0 makes Execute size the pool from the host CPU count
	}

	if !cm.config.Log.Console.Enabled && !cm.config.Log.File.Enabled {
		cm.config.Log.Console.Enabled = true
	}
	if cm.config.Log.Console.Format == "" {
		cm.config.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cm.config.Log.File.Format == "" {
		cm.config.Log.File.Format = configtypes.LogFormatText
	}
	if cm.config.Log.Level == "" {
		cm.config.Log.Level = configtypes.LogLevelInfo
	}
}
