package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "ports.default_port")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validatePorts()...)
	errors = append(errors, c.validateStop()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"paths.state_dir", c.Paths.StateDir},
		{"paths.registry_dir", c.Paths.RegistryDir},
		{"paths.profiles_dir", c.Paths.ProfilesDir},
	}
	for _, p := range paths {
		if p.value == "" {
			continue
		}

		// Check for null bytes which are invalid in paths
		if strings.ContainsRune(p.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "path contains invalid null character",
			})
		}

		// Reasonable path length limit (most filesystems have limits around 4096)
		const maxPathLength = 4096
		if len(p.value) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}

// validatePorts validates the PortsConfig
func (c *Config) validatePorts() []ValidationError {
	var errors []ValidationError

	// The paired secondary port must also fit
	if c.Ports.DefaultPort < 1 || c.Ports.DefaultPort > 65534 {
		errors = append(errors, ValidationError{
			Field:   "ports.default_port",
			Value:   c.Ports.DefaultPort,
			Message: "must be between 1 and 65534",
		})
	}

	if c.Ports.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "ports.max_attempts",
			Value:   c.Ports.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	const maxAttempts = 1000
	if c.Ports.MaxAttempts > maxAttempts {
		errors = append(errors, ValidationError{
			Field:   "ports.max_attempts",
			Value:   c.Ports.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttempts),
		})
	}

	if c.Ports.Host != "" && net.ParseIP(c.Ports.Host) == nil && c.Ports.Host != "localhost" {
		errors = append(errors, ValidationError{
			Field:   "ports.host",
			Value:   c.Ports.Host,
			Message: "must be an IP address or localhost",
		})
	}

	return errors
}

// validateStop validates the StopConfig
func (c *Config) validateStop() []ValidationError {
	var errors []ValidationError

	if c.Stop.GracePeriodMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "stop.grace_period_ms",
			Value:   c.Stop.GracePeriodMs,
			Message: "must be non-negative",
		})
	}

	if c.Stop.KillTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "stop.kill_timeout_ms",
			Value:   c.Stop.KillTimeoutMs,
			Message: "must be non-negative",
		})
	}

	if c.Stop.PollIntervalMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "stop.poll_interval_ms",
			Value:   c.Stop.PollIntervalMs,
			Message: "must be at least 1",
		})
	}

	// Polling slower than the grace period would skip the graceful window entirely
	if c.Stop.PollIntervalMs > 0 && c.Stop.GracePeriodMs > 0 && c.Stop.PollIntervalMs > c.Stop.GracePeriodMs {
		errors = append(errors, ValidationError{
			Field:   "stop.poll_interval_ms",
			Value:   c.Stop.PollIntervalMs,
			Message: fmt.Sprintf("must not exceed stop.grace_period_ms (%d)", c.Stop.GracePeriodMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
