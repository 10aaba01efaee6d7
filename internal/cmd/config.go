package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mapcore/internal/config"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify mapcore configuration",
	Long: `View or modify mapcore configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  mapcore config set persistence.driver sqlite
  mapcore config set style.max_retries 3
  mapcore config set metrics.enabled true

Valid keys:
  engine.debug                 - Record bus history (true/false)
  engine.history_size          - Bus history capacity
  style.default_basemap        - Basemap loaded at startup
  style.catalogue_file         - YAML basemap catalogue
  style.load_timeout_ms        - Timeout for one style load attempt
  style.max_retries            - Retries after a failed load (-1 disables)
  style.initial_backoff_ms     - First retry delay
  plugins.viewport_debounce_ms - Delay before plugins see camera changes
  persistence.driver           - Snapshot store
                                 Options: file, sqlite
  persistence.path             - Store directory or database file
  persistence.format           - File store encoding
                                 Options: json, yaml
  persistence.auto_restore     - Restore the latest snapshot on watch (true/false)
  persistence.watch_debounce_ms - Coalesce file events
  logging.enabled              - Write a log file (true/false)
  logging.level                - Options: debug, info, warn, error
  logging.dir                  - Log directory
  logging.max_size_mb          - Rotate the log file at this size (0 disables)
  logging.max_backups          - Rotated log files to keep
  logging.compress             - Gzip rotated log files (true/false)
  metrics.enabled              - Serve Prometheus metrics on watch (true/false)
  metrics.namespace            - Metric name prefix
  metrics.addr                 - Metrics listen address`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/mapcore/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the active configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

// settableKeys maps each key accepted by config set to its value type.
var settableKeys = map[string]string{
	"engine.debug":                  "bool",
	"engine.history_size":           "int",
	"style.default_basemap":         "string",
	"style.catalogue_file":          "string",
	"style.load_timeout_ms":         "int",
	"style.max_retries":             "int",
	"style.initial_backoff_ms":      "int",
	"plugins.viewport_debounce_ms":  "int",
	"persistence.driver":            "string",
	"persistence.path":              "string",
	"persistence.format":            "string",
	"persistence.auto_restore":      "bool",
	"persistence.watch_debounce_ms": "int",
	"logging.enabled":               "bool",
	"logging.level":                 "string",
	"logging.dir":                   "string",
	"logging.max_size_mb":           "int",
	"logging.max_backups":           "int",
	"logging.compress":              "bool",
	"metrics.enabled":               "bool",
	"metrics.namespace":             "string",
	"metrics.addr":                  "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "engine:")
	fmt.Fprintf(out, "  debug: %v\n", cfg.Engine.Debug)
	fmt.Fprintf(out, "  history_size: %d\n", cfg.Engine.HistorySize)

	fmt.Fprintln(out, "style:")
	fmt.Fprintf(out, "  default_basemap: %s\n", cfg.Style.DefaultBasemap)
	fmt.Fprintf(out, "  catalogue_file: %s\n", cfg.Style.CatalogueFile)
	fmt.Fprintf(out, "  basemaps: %d declared\n", len(cfg.Style.Basemaps))
	fmt.Fprintf(out, "  load_timeout_ms: %d\n", cfg.Style.LoadTimeoutMs)
	fmt.Fprintf(out, "  max_retries: %d\n", cfg.Style.MaxRetries)
	fmt.Fprintf(out, "  initial_backoff_ms: %d\n", cfg.Style.InitialBackoffMs)

	fmt.Fprintln(out, "plugins:")
	fmt.Fprintf(out, "  viewport_debounce_ms: %d\n", cfg.Plugins.ViewportDebounceMs)

	fmt.Fprintln(out, "persistence:")
	fmt.Fprintf(out, "  driver: %s\n", cfg.Persistence.Driver)
	fmt.Fprintf(out, "  path: %s\n", cfg.Persistence.ResolvePath())
	fmt.Fprintf(out, "  format: %s\n", cfg.Persistence.Format)
	fmt.Fprintf(out, "  auto_restore: %v\n", cfg.Persistence.AutoRestore)
	fmt.Fprintf(out, "  watch_debounce_ms: %d\n", cfg.Persistence.WatchDebounceMs)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %s\n", cfg.Logging.ResolveDir())
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	fmt.Fprintln(out, "metrics:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Metrics.Enabled)
	fmt.Fprintf(out, "  namespace: %s\n", cfg.Metrics.Namespace)
	fmt.Fprintf(out, "  addr: %s\n", cfg.Metrics.Addr)

	return nil
}

// parseSetting converts value to the type registered for key and checks
// enumerated values.
func parseSetting(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'mapcore config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 && key != "style.max_retries" {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	}

	var options []string
	switch key {
	case "persistence.driver":
		options = config.ValidStoreDrivers()
	case "persistence.format":
		options = config.ValidSnapshotFormats()
	case "logging.level":
		options = config.ValidLogLevels()
	}
	if options != nil && !slices.Contains(options, value) {
		return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s", key, value, strings.Join(options, ", "))
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typedValue, err := parseSetting(key, value)
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# mapcore configuration

engine:
  # Record published events so replay --history can show them
  debug: false
  history_size: 500

style:
  # Basemap loaded at startup; defaults to the catalogue default
  default_basemap: ""
  # Optional YAML catalogue:
  #   default: streets
  #   basemaps:
  #     - id: streets
  #       url: https://tiles.example.com/streets.json
  catalogue_file: ""
  # Basemaps declared inline are appended after the catalogue file's
  basemaps: []
  load_timeout_ms: 10000
  # Retries after a failed load; -1 disables retrying
  max_retries: 2
  initial_backoff_ms: 250

plugins:
  # Plugins see camera changes once the camera has settled this long
  viewport_debounce_ms: 100

persistence:
  # Options: file, sqlite
  driver: file
  # Empty means ~/.config/mapcore/snapshots (file) or snapshots.db (sqlite)
  path: ""
  # File store encoding. Options: json, yaml
  format: json
  # Restore the latest stored snapshot when watch starts
  auto_restore: false
  watch_debounce_ms: 50

logging:
  enabled: false
  # Options: debug, info, warn, error
  level: info
  dir: ""
  # Rotate at this size in MB (0 disables) and keep max_backups old files
  max_size_mb: 10
  max_backups: 3
  compress: false

metrics:
  # Serve Prometheus metrics while watching
  enabled: false
  namespace: mapcore
  addr: ":9464"
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'mapcore config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to declare basemaps and choose a snapshot store.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/mapcore/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: MAPCORE_* (e.g., MAPCORE_PERSISTENCE_DRIVER)")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	errs := cfg.Validate()
	if len(errs) == 0 {
		if _, err := cfg.Style.Catalogue(); err != nil {
			return fmt.Errorf("style catalogue: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.Check(true)+" configuration is valid")
		return nil
	}
	for _, e := range errs {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Check(false)+" "+e.Error())
	}
	return config.ValidationErrors(errs)
}
