package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/balkashynov/qcscan/internal/parser"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scanner.scan_cooldown_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the configuration and returns every violation found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateInspection()...)
	errors = append(errors, c.validateScanner()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateInspection() []ValidationError {
	var errors []ValidationError

	if c.Inspection.MaxParallelItemsPerSession < 1 || c.Inspection.MaxParallelItemsPerSession > 1000 {
		errors = append(errors, ValidationError{
			Field:   "inspection.max_parallel_items_per_session",
			Value:   c.Inspection.MaxParallelItemsPerSession,
			Message: "must be between 1 and 1000",
		})
	}
	if c.Inspection.StepTimeoutMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "inspection.step_timeout_minutes",
			Value:   c.Inspection.StepTimeoutMinutes,
			Message: "must be at least 1 minute",
		})
	}
	if _, err := parser.ParseReentryWindow(c.Inspection.ReentryWindow); err != nil {
		errors = append(errors, ValidationError{
			Field:   "inspection.reentry_window",
			Value:   c.Inspection.ReentryWindow,
			Message: err.Error(),
		})
	}
	if c.Inspection.DefaultPriority != "" && !parser.IsValidPriority(c.Inspection.DefaultPriority) {
		errors = append(errors, ValidationError{
			Field:   "inspection.default_priority",
			Value:   c.Inspection.DefaultPriority,
			Message: "must be low, medium, high, 1, 2 or 3",
		})
	}

	return errors
}

func (c *Config) validateScanner() []ValidationError {
	var errors []ValidationError

	if c.Scanner.ScanCooldownMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "scanner.scan_cooldown_ms",
			Value:   c.Scanner.ScanCooldownMs,
			Message: "must not be negative",
		})
	}
	if c.Scanner.RepeatWindowMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "scanner.repeat_window_ms",
			Value:   c.Scanner.RepeatWindowMs,
			Message: "must not be negative",
		})
	}
	if c.Scanner.MaxScansPerMinute < 1 {
		errors = append(errors, ValidationError{
			Field:   "scanner.max_scans_per_minute",
			Value:   c.Scanner.MaxScansPerMinute,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateSession() []ValidationError {
	if c.Session.OverdueCheckIntervalSeconds < 0 {
		return []ValidationError{{
			Field:   "session.overdue_check_interval_seconds",
			Value:   c.Session.OverdueCheckIntervalSeconds,
			Message: "must not be negative (0 disables the check)",
		}}
	}
	return nil
}

func (c *Config) validateDatabase() []ValidationError {
	var errors []ValidationError

	if !slices.Contains([]string{"sqlite", "postgres"}, c.Database.Driver) {
		errors = append(errors, ValidationError{
			Field:   "database.driver",
			Value:   c.Database.Driver,
			Message: "must be sqlite or postgres",
		})
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "database.dsn",
			Value:   c.Database.DSN,
			Message: "is required for the postgres driver",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be debug, info, warn or error",
		})
	}
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: "must be console or json",
		})
	}

	return errors
}
