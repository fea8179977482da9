// Package configtypes holds plain, yaml-tagged structs for the engine's
// bootstrap configuration, kept separate from the config package so the
// logger (and anything else that only needs the shapes) can import it
// without pulling in the loader.
package configtypes

// Log level constants.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// WorkflowConfig is the top-level bootstrap configuration for a Workflow
// run: worker-pool sizing, run options, and logging. A CLI front-end (out
// of core scope) loads this and constructs a workflow.Workflow from it.
type WorkflowConfig struct {
	Workdir string     `yaml:"workdir,omitempty"`
	Jobs    int        `yaml:"jobs,omitempty"`
	Quiet   bool       `yaml:"quiet,omitempty"`
	Force   ForceConfig `yaml:"force,omitempty"`
	Log     LogConfig  `yaml:"log"`
}

// ForceConfig mirrors spec.md §6's force_this/force_all run options.
type ForceConfig struct {
	All  bool `yaml:"all,omitempty"`
	This bool `yaml:"this,omitempty"`
}

// LogConfig configures the engine's logger.
type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
