// Package config loads the YAML configuration file: environment variable
// expansion, top-level settings and the raw per-module sections.
package config

import (
	"github.com/flemzord/substackulous/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the SQLite database and other state. Defaults to the
	// platform data directory chosen by the caller.
	DataDir string `yaml:"data_dir,omitempty"`

	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Security  SecurityConfig   `yaml:"security"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.groq").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`
	// Format is text or json. Default: text.
	Format string `yaml:"format"`
}

// SecurityConfig holds process-wide security settings.
type SecurityConfig struct {
	// AuditLog is the path of the JSON-lines audit log. Empty writes audit
	// events to the application log instead.
	AuditLog string `yaml:"audit_log,omitempty"`

	// Redact lists extra literal values scrubbed from logs, on top of the
	// secrets found in module sections.
	Redact []string `yaml:"redact,omitempty"`
}
