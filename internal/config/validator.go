package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "style.load_timeout_ms")
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

// metricNamespaceRegex matches a valid Prometheus metric name prefix
var metricNamespaceRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStoreDrivers returns the list of valid snapshot store drivers
func ValidStoreDrivers() []string {
	return []string{"file", "sqlite"}
}

// ValidSnapshotFormats returns the list of valid snapshot file formats
func ValidSnapshotFormats() []string {
	return []string{"json", "yaml"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validateStyle()...)
	errors = append(errors, c.validatePlugins()...)
	errors = append(errors, c.validatePersistence()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateEngine validates the EngineConfig
func (c *Config) validateEngine() []ValidationError {
	var errors []ValidationError

	const maxHistory = 100000
	if c.Engine.HistorySize < 0 || c.Engine.HistorySize > maxHistory {
		errors = append(errors, ValidationError{
			Field:   "engine.history_size",
			Value:   c.Engine.HistorySize,
			Message: fmt.Sprintf("must be between 0 and %d", maxHistory),
		})
	}

	return errors
}

// validateStyle validates the StyleConfig
func (c *Config) validateStyle() []ValidationError {
	var errors []ValidationError

	if c.Style.LoadTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "style.load_timeout_ms",
			Value:   c.Style.LoadTimeoutMs,
			Message: "must be positive",
		})
	}
	if c.Style.MaxRetries < -1 || c.Style.MaxRetries > 10 {
		errors = append(errors, ValidationError{
			Field:   "style.max_retries",
			Value:   c.Style.MaxRetries,
			Message: "must be between -1 and 10",
		})
	}
	if c.Style.InitialBackoffMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "style.initial_backoff_ms",
			Value:   c.Style.InitialBackoffMs,
			Message: "must be positive",
		})
	}

	if c.Style.CatalogueFile != "" {
		if _, err := os.Stat(c.Style.CatalogueFile); err != nil {
			errors = append(errors, ValidationError{
				Field:   "style.catalogue_file",
				Value:   c.Style.CatalogueFile,
				Message: "file does not exist",
			})
		}
	}

	seen := make(map[string]bool, len(c.Style.Basemaps))
	for i, b := range c.Style.Basemaps {
		field := fmt.Sprintf("style.basemaps[%d]", i)
		if b.ID == "" {
			errors = append(errors, ValidationError{Field: field + ".id", Value: b.ID, Message: "is required"})
			continue
		}
		if seen[b.ID] {
			errors = append(errors, ValidationError{Field: field + ".id", Value: b.ID, Message: "duplicate basemap id"})
		}
		seen[b.ID] = true
		if b.URL == "" && len(b.Document) == 0 {
			errors = append(errors, ValidationError{Field: field, Value: b.ID, Message: "needs a url or a document"})
		}
	}

	// A default pointing at the catalogue file is checked when the file is loaded.
	if c.Style.DefaultBasemap != "" && c.Style.CatalogueFile == "" && !seen[c.Style.DefaultBasemap] {
		errors = append(errors, ValidationError{
			Field:   "style.default_basemap",
			Value:   c.Style.DefaultBasemap,
			Message: "is not a declared basemap",
		})
	}

	return errors
}

// validatePlugins validates the PluginsConfig
func (c *Config) validatePlugins() []ValidationError {
	var errors []ValidationError

	const maxDebounceMs = 10000
	if c.Plugins.ViewportDebounceMs < 0 || c.Plugins.ViewportDebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "plugins.viewport_debounce_ms",
			Value:   c.Plugins.ViewportDebounceMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxDebounceMs),
		})
	}

	return errors
}

// validatePersistence validates the PersistenceConfig
func (c *Config) validatePersistence() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStoreDrivers(), c.Persistence.Driver) {
		errors = append(errors, ValidationError{
			Field:   "persistence.driver",
			Value:   c.Persistence.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreDrivers(), ", ")),
		})
	}
	if c.Persistence.Format != "" && !slices.Contains(ValidSnapshotFormats(), c.Persistence.Format) {
		errors = append(errors, ValidationError{
			Field:   "persistence.format",
			Value:   c.Persistence.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSnapshotFormats(), ", ")),
		})
	}
	if c.Persistence.Watch && c.Persistence.Driver == "sqlite" {
		errors = append(errors, ValidationError{
			Field:   "persistence.watch",
			Value:   c.Persistence.Watch,
			Message: "requires the file driver",
		})
	}
	if c.Persistence.WatchDebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "persistence.watch_debounce_ms",
			Value:   c.Persistence.WatchDebounceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 0 and %d", maxLogSizeMB),
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !metricNamespaceRegex.MatchString(c.Metrics.Namespace) {
		errors = append(errors, ValidationError{
			Field:   "metrics.namespace",
			Value:   c.Metrics.Namespace,
			Message: "must start with a letter or underscore and contain only letters, digits and underscores",
		})
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metrics.addr",
				Value:   c.Metrics.Addr,
				Message: "must be host:port",
			})
		}
	}

	return errors
}
