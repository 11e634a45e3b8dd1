package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // Log verbosity level
	pathConfig string // Explicit path_config.env location, empty = search order
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "pasim",
	Short: "Photoacoustic image simulation pipeline",
	Long: "pasim orchestrates external optical and acoustic forward-model solvers\n" +
		"and in-repo image processing into reproducible photoacoustic simulations.",
}

// setupLogging applies the --log flag. Called by every subcommand.
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up persistent CLI flags
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&pathConfig, "path-config", "", "Explicit path_config.env location (default: search order)")
}
