package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/style"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Engine.Debug {
		t.Error("Engine.Debug should be false by default")
	}
	if cfg.Engine.HistorySize != 500 {
		t.Errorf("Engine.HistorySize = %d, want 500", cfg.Engine.HistorySize)
	}

	if cfg.Style.MaxRetries != style.DefaultMaxRetries {
		t.Errorf("Style.MaxRetries = %d, want %d", cfg.Style.MaxRetries, style.DefaultMaxRetries)
	}
	if got := cfg.Style.LoadSettings().LoadTimeout; got != style.DefaultLoadTimeout {
		t.Errorf("Style.LoadSettings().LoadTimeout = %v, want %v", got, style.DefaultLoadTimeout)
	}

	if cfg.Plugins.ViewportDebounce() != 100*time.Millisecond {
		t.Errorf("Plugins.ViewportDebounce() = %v, want 100ms", cfg.Plugins.ViewportDebounce())
	}

	if cfg.Persistence.Driver != "file" || cfg.Persistence.Format != "json" {
		t.Errorf("Persistence = %+v, want file/json", cfg.Persistence)
	}
	if cfg.Persistence.AutoRestore || cfg.Persistence.Watch {
		t.Error("Persistence.AutoRestore and Watch should be off by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if got := cfg.Logging.Rotation(); got != logging.DefaultRotation() {
		t.Errorf("Logging.Rotation() = %+v, want %+v", got, logging.DefaultRotation())
	}
	if cfg.Metrics.Namespace != "mapcore" {
		t.Errorf("Metrics.Namespace = %q, want mapcore", cfg.Metrics.Namespace)
	}
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"viewport debounce", (&PluginsConfig{ViewportDebounceMs: 250}).ViewportDebounce(), 250 * time.Millisecond},
		{"watch debounce", (&PersistenceConfig{WatchDebounceMs: 75}).WatchDebounce(), 75 * time.Millisecond},
		{"initial backoff", (&StyleConfig{InitialBackoffMs: 10}).LoadSettings().InitialBackoff, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestStyleConfig_Catalogue(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "basemaps.yaml")
	data := []byte(`default: streets
basemaps:
  - id: streets
    url: https://tiles.example.com/streets.json
`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sc := StyleConfig{
		CatalogueFile:  file,
		DefaultBasemap: "satellite",
		Basemaps:       []style.Basemap{{ID: "satellite", URL: "https://tiles.example.com/satellite.json"}},
	}
	cat, err := sc.Catalogue()
	if err != nil {
		t.Fatalf("Catalogue() error = %v", err)
	}
	if cat.Default != "satellite" {
		t.Errorf("Default = %q, want satellite", cat.Default)
	}
	if ids := cat.IDs(); len(ids) != 2 || ids[0] != "streets" || ids[1] != "satellite" {
		t.Errorf("IDs() = %v, want [streets satellite]", ids)
	}

	sc.DefaultBasemap = "moon"
	if _, err := sc.Catalogue(); err == nil {
		t.Error("Catalogue() with unknown default should fail")
	}
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"file store", (&PersistenceConfig{Driver: "file"}).ResolvePath(), "/custom/config/mapcore/snapshots"},
		{"sqlite store", (&PersistenceConfig{Driver: "sqlite"}).ResolvePath(), "/custom/config/mapcore/snapshots.db"},
		{"explicit store", (&PersistenceConfig{Driver: "sqlite", Path: "/tmp/s.db"}).ResolvePath(), "/tmp/s.db"},
		{"log dir", (&LoggingConfig{}).ResolveDir(), "/custom/config/mapcore/logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/mapcore" {
			t.Errorf("ConfigDir() = %q, want /custom/config/mapcore", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		want := filepath.Join(home, ".config", "mapcore")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/mapcore/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestLoad_FromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("persistence.driver", "sqlite")
	viper.Set("style.basemaps", []map[string]any{
		{"id": "streets", "url": "https://tiles.example.com/streets.json"},
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Persistence.Driver != "sqlite" {
		t.Errorf("Persistence.Driver = %q, want sqlite", cfg.Persistence.Driver)
	}
	if cfg.Plugins.ViewportDebounceMs != 100 {
		t.Errorf("Plugins.ViewportDebounceMs = %d, want default 100", cfg.Plugins.ViewportDebounceMs)
	}
	if len(cfg.Style.Basemaps) != 1 || cfg.Style.Basemaps[0].ID != "streets" {
		t.Errorf("Style.Basemaps = %+v", cfg.Style.Basemaps)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("Get().Metrics.Addr = %q, want :9464", cfg.Metrics.Addr)
	}
}
