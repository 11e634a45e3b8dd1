package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pasim/pasim/sim/pathmgr"
)

// pathsCmd prints the resolved external tool paths and where they came from
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show resolved external tool paths",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		cfg, err := pathmgr.Load(pathConfig)
		if err != nil {
			logrus.Fatalf("Cannot resolve tool paths: %v", err)
		}

		source := cfg.Source
		if source == "" {
			source = "(environment variables only)"
		}
		fmt.Printf("source: %s\n", source)
		fmt.Printf("%-26s %s\n", pathmgr.KeyMCXBinary, orUnset(cfg.MCXBinaryPath))
		fmt.Printf("%-26s %s\n", pathmgr.KeyMatlabBinary, orUnset(cfg.MatlabBinaryPath))
		fmt.Printf("%-26s %s\n", pathmgr.KeyAcousticScript, orUnset(cfg.AcousticScriptDirectory))
	},
}

func orUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}
