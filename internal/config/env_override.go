package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("AIDE_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if dir := os.Getenv("AIDE_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if dir := os.Getenv("AIDE_BUILTIN_SKILLS_DIR"); dir != "" {
		c.Skills.BuiltinDir = dir
	}
	if level := os.Getenv("AIDE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("AIDE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if v := os.Getenv("AIDE_MAX_SESSION_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.MaxMessages = n
		}
	}
	if v := os.Getenv("AIDE_ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Archive.Enabled = b
		}
	}
}
