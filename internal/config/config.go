package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete qcscan configuration
type Config struct {
	Inspection InspectionConfig `mapstructure:"inspection"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Session    SessionConfig    `mapstructure:"session"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// InspectionConfig controls the entry/exit state machine
type InspectionConfig struct {
	// MaxParallelItemsPerSession caps the active items a session may hold
	MaxParallelItemsPerSession int `mapstructure:"max_parallel_items_per_session"`
	// StepTimeoutMinutes marks an item overdue once exceeded (advisory only)
	StepTimeoutMinutes int `mapstructure:"step_timeout_minutes"`
	// RequireBothScans requires an exit scan; when false the entry scan completes the item
	RequireBothScans bool `mapstructure:"require_both_scans"`
	// AllowRework lets items be flagged for rework and lets flagged codes re-enter
	AllowRework bool `mapstructure:"allow_rework"`
	// ReentryWindow blocks re-entry of completed codes
	// Options: "calendar_day", "off", or a rolling window such as "24 hours"
	ReentryWindow string `mapstructure:"reentry_window"`
	// DefaultPriority is the priority given to new items: low, medium, high
	DefaultPriority string `mapstructure:"default_priority"`
}

// ScannerConfig controls duplicate suppression and rate limiting
type ScannerConfig struct {
	// ScanCooldownMs rejects a code accepted less than this many ms ago
	ScanCooldownMs int `mapstructure:"scan_cooldown_ms"`
	// RepeatWindowMs rejects an immediate repeat of the last processed code
	RepeatWindowMs int `mapstructure:"repeat_window_ms"`
	// MaxScansPerMinute caps scans per session over a sliding minute
	MaxScansPerMinute int `mapstructure:"max_scans_per_minute"`
}

// AuditConfig controls the audit log
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SessionConfig controls session housekeeping
type SessionConfig struct {
	// OverdueCheckIntervalSeconds is how often active items are checked against the step timeout (0 = disabled)
	OverdueCheckIntervalSeconds int `mapstructure:"overdue_check_interval_seconds"`
}

// DatabaseConfig selects the store backend
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`
	// Path is the sqlite file (default ~/.qcscan/qcscan.db)
	Path string `mapstructure:"path"`
	// DSN is the postgres connection string
	DSN string `mapstructure:"dsn"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level"`
	// Format is console or json
	Format string `mapstructure:"format"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Inspection: InspectionConfig{
			MaxParallelItemsPerSession: 10,
			StepTimeoutMinutes:         120,
			RequireBothScans:           true,
			AllowRework:                true,
			ReentryWindow:              "calendar_day",
			DefaultPriority:            "medium",
		},
		Scanner: ScannerConfig{
			ScanCooldownMs:    3000,
			RepeatWindowMs:    2000,
			MaxScansPerMinute: 30,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Session: SessionConfig{
			OverdueCheckIntervalSeconds: 60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Inspection defaults
	v.SetDefault("inspection.max_parallel_items_per_session", defaults.Inspection.MaxParallelItemsPerSession)
	v.SetDefault("inspection.step_timeout_minutes", defaults.Inspection.StepTimeoutMinutes)
	v.SetDefault("inspection.require_both_scans", defaults.Inspection.RequireBothScans)
	v.SetDefault("inspection.allow_rework", defaults.Inspection.AllowRework)
	v.SetDefault("inspection.reentry_window", defaults.Inspection.ReentryWindow)
	v.SetDefault("inspection.default_priority", defaults.Inspection.DefaultPriority)

	// Scanner defaults
	v.SetDefault("scanner.scan_cooldown_ms", defaults.Scanner.ScanCooldownMs)
	v.SetDefault("scanner.repeat_window_ms", defaults.Scanner.RepeatWindowMs)
	v.SetDefault("scanner.max_scans_per_minute", defaults.Scanner.MaxScansPerMinute)

	v.SetDefault("audit.enabled", defaults.Audit.Enabled)
	v.SetDefault("session.overdue_check_interval_seconds", defaults.Session.OverdueCheckIntervalSeconds)

	// Database defaults
	v.SetDefault("database.driver", defaults.Database.Driver)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("database.dsn", defaults.Database.DSN)

	v.SetDefault("server.addr", defaults.Server.Addr)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// StepTimeout returns the advisory step timeout
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Inspection.StepTimeoutMinutes) * time.Minute
}

// ScanCooldown returns the per-code cooldown window
func (c *Config) ScanCooldown() time.Duration {
	return time.Duration(c.Scanner.ScanCooldownMs) * time.Millisecond
}

// RepeatWindow returns the immediate-repeat window
func (c *Config) RepeatWindow() time.Duration {
	return time.Duration(c.Scanner.RepeatWindowMs) * time.Millisecond
}

// OverdueCheckInterval returns how often sessions look for overdue items
func (c *Config) OverdueCheckInterval() time.Duration {
	return time.Duration(c.Session.OverdueCheckIntervalSeconds) * time.Second
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qcscan")
	}
	// Fall back to ~/.config/qcscan
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qcscan"
	}
	return filepath.Join(home, ".config", "qcscan")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
