package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gateway configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace root; sessions and workspace skills live beneath it.
	Workspace string `yaml:"workspace"`

	// Data directory for global (cross-workspace) state: global skills,
	// legacy session files from before per-workspace storage.
	DataDir string `yaml:"data_dir"`

	// Session storage
	Session SessionConfig `yaml:"session"`

	// Skill discovery and hot reload
	Skills SkillsConfig `yaml:"skills"`

	// Archive of messages dropped by session truncation
	Archive ArchiveConfig `yaml:"archive"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig configures the conversation store.
type SessionConfig struct {
	// Maximum sessions held in memory (LRU beyond this).
	MaxCacheSize int `yaml:"max_cache_size"`

	// Maximum messages persisted per session; older messages are dropped
	// (and archived when the archive store is enabled) on save.
	MaxMessages int `yaml:"max_messages"`
}

// SkillsConfig configures skill discovery.
type SkillsConfig struct {
	// Builtin skills directory shipped with the binary. Not watched.
	BuiltinDir string `yaml:"builtin_dir"`

	// Debounce window for filesystem events during hot reload.
	WatchDebounce string `yaml:"watch_debounce"`
}

// ArchiveConfig configures the truncation archive.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Name:    "aide",
		Version: "0.3.0",

		Workspace: ".",
		DataDir:   filepath.Join(home, ".aide"),

		Session: SessionConfig{
			MaxCacheSize: 50,
			MaxMessages:  500,
		},

		Skills: SkillsConfig{
			WatchDebounce: "500ms",
		},

		Archive: ArchiveConfig{
			Enabled:      true,
			DatabasePath: "data/archive.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus environment when no config file exists
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SessionsDir returns the per-workspace session directory.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Workspace, "sessions")
}

// LegacySessionsDir returns the pre-workspace global session directory.
// Files found here are migrated into SessionsDir on first access.
func (c *Config) LegacySessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// WorkspaceSkillsDir returns the workspace skill root (highest priority).
func (c *Config) WorkspaceSkillsDir() string {
	return filepath.Join(c.Workspace, "skills")
}

// GlobalSkillsDir returns the cross-workspace skill root.
func (c *Config) GlobalSkillsDir() string {
	return filepath.Join(c.DataDir, "skills")
}

// WatchDebounce parses the configured debounce window, falling back to the
// default on a malformed value.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Skills.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	if c.Session.MaxCacheSize < 1 {
		return fmt.Errorf("session.max_cache_size must be at least 1, got %d", c.Session.MaxCacheSize)
	}
	if c.Session.MaxMessages < 1 {
		return fmt.Errorf("session.max_messages must be at least 1, got %d", c.Session.MaxMessages)
	}
	return nil
}
