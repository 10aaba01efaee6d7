package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// Config represents the complete mapcore configuration
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine"`
	Style       StyleConfig       `mapstructure:"style"`
	Plugins     PluginsConfig     `mapstructure:"plugins"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// EngineConfig controls the map controller
type EngineConfig struct {
	// Debug records published events in the bus history (default: false)
	Debug bool `mapstructure:"debug"`
	// HistorySize is the number of events kept when Debug is on (default: 500)
	HistorySize int `mapstructure:"history_size"`
	// Container identifies the host surface handed to the renderer factory
	Container string `mapstructure:"container"`
}

// StyleConfig controls basemaps and style loading
type StyleConfig struct {
	// DefaultBasemap overrides the catalogue default
	DefaultBasemap string `mapstructure:"default_basemap"`
	// CatalogueFile is an optional YAML basemap catalogue
	CatalogueFile string `mapstructure:"catalogue_file"`
	// Basemaps are declared inline and appended after the catalogue file's
	Basemaps []style.Basemap `mapstructure:"basemaps"`
	// LoadTimeoutMs bounds one style load attempt (default: 10000)
	LoadTimeoutMs int `mapstructure:"load_timeout_ms"`
	// MaxRetries is the number of retries after a failed load (default: 2, -1 disables)
	MaxRetries int `mapstructure:"max_retries"`
	// InitialBackoffMs is the first retry delay; later delays grow exponentially (default: 250)
	InitialBackoffMs int `mapstructure:"initial_backoff_ms"`
}

// PluginsConfig controls the plugin manager
type PluginsConfig struct {
	// ViewportDebounceMs delays OnViewportChange until the camera settles (default: 100)
	ViewportDebounceMs int `mapstructure:"viewport_debounce_ms"`
}

// PersistenceConfig controls snapshot storage
type PersistenceConfig struct {
	// Driver selects the snapshot store: "file" or "sqlite" (default: "file")
	Driver string `mapstructure:"driver"`
	// Path is the store directory (file) or database file (sqlite).
	// Empty means <config dir>/snapshots or <config dir>/snapshots.db.
	Path string `mapstructure:"path"`
	// Format is the file store encoding: "json" or "yaml" (default: "json")
	Format string `mapstructure:"format"`
	// AutoRestore restores the latest snapshot after the map is ready (default: false)
	AutoRestore bool `mapstructure:"auto_restore"`
	// Watch restores snapshot files as they change on disk (default: false)
	Watch bool `mapstructure:"watch"`
	// WatchDebounceMs coalesces bursts of file events (default: 50)
	WatchDebounceMs int `mapstructure:"watch_debounce_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes logs to a file in Dir (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum level: "debug", "info", "warn" or "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory; empty means <config dir>/logs
	Dir string `mapstructure:"dir"`
	// MaxSizeMB rotates the log file at this size; 0 disables rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus collector
type MetricsConfig struct {
	// Enabled registers the collector and serves /metrics (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Namespace prefixes every metric name (default: "mapcore")
	Namespace string `mapstructure:"namespace"`
	// Addr is the listen address for /metrics (default: ":9464")
	Addr string `mapstructure:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Debug:       false,
			HistorySize: 500,
		},
		Style: StyleConfig{
			LoadTimeoutMs:    int(style.DefaultLoadTimeout / time.Millisecond),
			MaxRetries:       style.DefaultMaxRetries,
			InitialBackoffMs: int(style.DefaultInitialBackoff / time.Millisecond),
		},
		Plugins: PluginsConfig{
			ViewportDebounceMs: 100,
		},
		Persistence: PersistenceConfig{
			Driver:          "file",
			Format:          "json",
			AutoRestore:     false,
			Watch:           false,
			WatchDebounceMs: 50,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "mapcore",
			Addr:      ":9464",
		},
	}
}

// LoadSettings returns the style coordinator settings.
func (c *StyleConfig) LoadSettings() style.Config {
	return style.Config{
		LoadTimeout:    time.Duration(c.LoadTimeoutMs) * time.Millisecond,
		MaxRetries:     c.MaxRetries,
		InitialBackoff: time.Duration(c.InitialBackoffMs) * time.Millisecond,
	}
}

// Catalogue assembles the basemap catalogue from the catalogue file and the
// inline basemaps. DefaultBasemap, when set, overrides the file's default.
func (c *StyleConfig) Catalogue() (style.Catalogue, error) {
	var cat style.Catalogue
	if c.CatalogueFile != "" {
		loaded, err := style.LoadCatalogue(c.CatalogueFile)
		if err != nil {
			return style.Catalogue{}, err
		}
		cat = loaded
	}
	cat.Basemaps = append(cat.Basemaps, c.Basemaps...)
	if c.DefaultBasemap != "" {
		cat.Default = c.DefaultBasemap
	}
	if err := cat.Validate(); err != nil {
		return style.Catalogue{}, err
	}
	return cat, nil
}

// ViewportDebounce returns the viewport debounce as a Duration
func (c *PluginsConfig) ViewportDebounce() time.Duration {
	return time.Duration(c.ViewportDebounceMs) * time.Millisecond
}

// WatchDebounce returns the watcher debounce as a Duration
func (c *PersistenceConfig) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMs) * time.Millisecond
}

// ResolvePath returns the store location, defaulting under the config dir.
func (c *PersistenceConfig) ResolvePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Driver == "sqlite" {
		return filepath.Join(ConfigDir(), "snapshots.db")
	}
	return filepath.Join(ConfigDir(), "snapshots")
}

// Rotation returns the log file rotation settings.
func (c *LoggingConfig) Rotation() logging.Rotation {
	return logging.Rotation{MaxSizeMB: c.MaxSizeMB, MaxBackups: c.MaxBackups, Compress: c.Compress}
}

// ResolveDir returns the log directory, defaulting under the config dir.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Engine defaults
	viper.SetDefault("engine.debug", defaults.Engine.Debug)
	viper.SetDefault("engine.history_size", defaults.Engine.HistorySize)
	viper.SetDefault("engine.container", defaults.Engine.Container)

	// Style defaults
	viper.SetDefault("style.default_basemap", defaults.Style.DefaultBasemap)
	viper.SetDefault("style.catalogue_file", defaults.Style.CatalogueFile)
	viper.SetDefault("style.load_timeout_ms", defaults.Style.LoadTimeoutMs)
	viper.SetDefault("style.max_retries", defaults.Style.MaxRetries)
	viper.SetDefault("style.initial_backoff_ms", defaults.Style.InitialBackoffMs)

	// Plugin defaults
	viper.SetDefault("plugins.viewport_debounce_ms", defaults.Plugins.ViewportDebounceMs)

	// Persistence defaults
	viper.SetDefault("persistence.driver", defaults.Persistence.Driver)
	viper.SetDefault("persistence.path", defaults.Persistence.Path)
	viper.SetDefault("persistence.format", defaults.Persistence.Format)
	viper.SetDefault("persistence.auto_restore", defaults.Persistence.AutoRestore)
	viper.SetDefault("persistence.watch", defaults.Persistence.Watch)
	viper.SetDefault("persistence.watch_debounce_ms", defaults.Persistence.WatchDebounceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mapcore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mapcore"
	}
	return filepath.Join(home, ".config", "mapcore")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
