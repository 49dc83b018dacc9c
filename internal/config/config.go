// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/planline/planline/internal/timegrid"
)

// Default values.
const (
	DefaultTasksFile       = "planline.json"
	DefaultViewMode        = "week"
	DefaultHistoryLimit    = 50
	DefaultWatchDebounceMS = 200
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config holds the full configuration for planline.
type Config struct {
	// Paths
	TasksFile  string `toml:"tasks_file"`
	SchemaFile string `toml:"schema_file"`

	// Timeline
	ViewMode        string `toml:"view_mode"`
	HistoryLimit    int    `toml:"history_limit"`
	WatchDebounceMS int    `toml:"watch_debounce_ms"`

	// Logging
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`

	// Project root (computed)
	ProjectRoot string `toml:"-"`
}

// setDefaults fills in default values.
func setDefaults(cfg *Config) {
	cfg.TasksFile = DefaultTasksFile
	cfg.ViewMode = DefaultViewMode
	cfg.HistoryLimit = DefaultHistoryLimit
	cfg.WatchDebounceMS = DefaultWatchDebounceMS
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
}

// Mode returns the parsed view mode.
func (c *Config) Mode() timegrid.ViewMode {
	mode, ok := timegrid.ParseViewMode(c.ViewMode)
	if !ok {
		return timegrid.ModeWeek
	}
	return mode
}

// finalize resolves paths and validates values.
func finalize(cfg *Config) error {
	if cfg.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.ProjectRoot = wd
	}

	cfg.TasksFile = expandPath(cfg.TasksFile)
	if !filepath.IsAbs(cfg.TasksFile) {
		cfg.TasksFile = filepath.Join(cfg.ProjectRoot, cfg.TasksFile)
	}
	if cfg.SchemaFile != "" {
		cfg.SchemaFile = expandPath(cfg.SchemaFile)
		if !filepath.IsAbs(cfg.SchemaFile) {
			cfg.SchemaFile = filepath.Join(cfg.ProjectRoot, cfg.SchemaFile)
		}
	}

	if _, ok := timegrid.ParseViewMode(cfg.ViewMode); !ok {
		return fmt.Errorf("invalid view mode %q (expected day, week, or month)", cfg.ViewMode)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.WatchDebounceMS <= 0 {
		cfg.WatchDebounceMS = DefaultWatchDebounceMS
	}
	return nil
}

// expandPath expands a leading ~/ and environment variables in paths.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	expanded := os.ExpandEnv(p)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		if expanded == "~" {
			return home
		}
		return filepath.Join(home, expanded[2:])
	}
	return expanded
}
