package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mapcore/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mapcore",
	Short: "Headless map-state engine tooling",
	Long: `mapcore manages map state snapshots: it validates and migrates them,
keeps them in a file or SQLite store, and replays them through a headless
map engine to show exactly which layers, plugins and basemap they restore.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is $HOME/.config/mapcore/config.yaml)")
	pf.String("store", "", "snapshot store path (directory for file, database for sqlite)")
	pf.String("driver", "", "snapshot store driver: file or sqlite")
	pf.String("log-level", "", "log level: debug, info, warn or error")

	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("persistence.path", pf.Lookup("store"))
	_ = viper.BindPFlag("persistence.driver", pf.Lookup("driver"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/mapcore")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAPCORE")
	// e.g., MAPCORE_PERSISTENCE_DRIVER for persistence.driver
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig unmarshals and validates the active configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return cfg, nil
}
