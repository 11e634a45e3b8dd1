package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/pathmgr"
)

var validateConfigPath string // Settings YAML to check

// validateCmd checks a settings file and the tool path setup without running
// any solver
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a settings file and the external tool setup",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		settings, err := sim.LoadSettings(validateConfigPath)
		if err != nil {
			logrus.Fatalf("Settings invalid: %v", err)
		}
		grid := settings.Grid()
		logrus.Infof("settings ok: %d structures, grid %dx%dx%d, wavelengths %v",
			len(settings.Volume.Structures), grid.NX, grid.NY, grid.NZ, settings.General.Wavelengths)

		paths, err := pathmgr.Load(pathConfig)
		if err != nil {
			logrus.Fatalf("Tool paths unresolved: %v", err)
		}
		checkPath("optical solver binary", paths.MCXBinaryPath)
		checkPath("MATLAB binary", paths.MatlabBinaryPath)
		checkPath("acoustic script directory", paths.AcousticScriptDirectory)
		logrus.Info("validation complete")
	},
}

// checkPath warns about missing tools instead of failing: a machine may
// legitimately run only part of the pipeline.
func checkPath(what, path string) {
	if path == "" {
		logrus.Warnf("%s not configured", what)
		return
	}
	if _, err := os.Stat(path); err != nil {
		logrus.Warnf("%s configured as %q but not found", what, path)
		return
	}
	logrus.Infof("%s: %s", what, path)
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "Simulation settings YAML file (required)")
	_ = validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(validateCmd)
}
