// Package config loads leapsheets configuration for the CLI.
//
// Values are layered with koanf: built-in defaults, then leapsheets.yaml,
// then LEAPSHEETS_* environment variables (including those from a .env file
// next to the config), then explicitly set flags.
package config

import (
	sharedcfg "github.com/leapstack-labs/leapsheets/internal/config"
)

// TargetConfig is an alias for the shared warehouse target configuration.
type TargetConfig = sharedcfg.TargetConfig

// SheetsConfig is an alias for the shared spreadsheet backend configuration.
type SheetsConfig = sharedcfg.SheetsConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	NoRewrite    bool                 `koanf:"no_rewrite"`
	NoHistory    bool                 `koanf:"no_history"`
	Target       *TargetConfig        `koanf:"target"`
	Sheets       *SheetsConfig        `koanf:"sheets"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target *TargetConfig `koanf:"target"`
	Sheets *SheetsConfig `koanf:"sheets"`
}

// Default configuration values.
const (
	DefaultStateFile = sharedcfg.DefaultStateFile
	DefaultEnv       = sharedcfg.DefaultEnv
	DefaultOutput    = sharedcfg.DefaultOutput
)

// WarehouseConfigured reports whether a warehouse target is set.
func (c *Config) WarehouseConfigured() bool {
	return c.Target != nil && c.Target.Type != ""
}
