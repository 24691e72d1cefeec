// Package main provides the smartcache daemon and its helper commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shammianand/smartcache/internal/config"
)

var (
	// Version is set at build time.
	Version = ""

	configFile string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "smartcache",
		Short:         "In-memory TTL/LRU cache server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./smartcache.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", fmt.Sprintf("override log level (env %sLOG_LEVEL)", config.EnvPrefix))

	rootCmd.AddCommand(serveCmd, configCmd, demoCmd)
}
