package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/acoustic"
	"github.com/pasim/pasim/sim/hdf5store"
	"github.com/pasim/pasim/sim/optical"
	"github.com/pasim/pasim/sim/pathmgr"
	"github.com/pasim/pasim/sim/process"
	"github.com/pasim/pasim/sim/recon"
)

var (
	configPath string // Simulation settings YAML
	seed       int64  // Master seed override
	gpu        bool   // GPU acceleration override for the optical solver
	skipSolver bool   // Stop after volume creation (no external tools needed)
)

// runCmd executes a full simulation pipeline from a settings file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a photoacoustic simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		settings, err := sim.LoadSettings(configPath)
		if err != nil {
			logrus.Fatalf("Invalid settings: %v", err)
		}
		if cmd.Flags().Changed("seed") {
			settings.General.Seed = seed
		}
		if cmd.Flags().Changed("gpu") {
			settings.General.GPU = gpu
		}

		if settings.General.OutputDir != "" {
			if err := os.MkdirAll(settings.General.OutputDir, 0o755); err != nil {
				logrus.Fatalf("Cannot create output directory: %v", err)
			}
		}
		containerPath := filepath.Join(settings.General.OutputDir, settings.General.RunID+".hdf5")
		store := hdf5store.New(containerPath)
		rc := sim.NewRunContext(settings, store)

		components := []sim.Component{&sim.VolumeCreator{}}
		if !skipSolver {
			paths, err := pathmgr.Load(pathConfig)
			if err != nil {
				logrus.Fatalf("Cannot resolve external tool paths: %v", err)
			}
			components = append(components,
				optical.New(paths, settings),
				acoustic.New(paths, settings),
				&recon.DelayAndSum{SpeedOfSound: settings.Reconstruction.SpeedOfSound},
				process.FromSettings(settings),
			)
		}
		pipeline, err := sim.NewPipeline(components...)
		if err != nil {
			logrus.Fatalf("Cannot assemble pipeline: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		runErr := pipeline.Run(ctx, rc)

		journalPath := filepath.Join(settings.General.OutputDir, settings.General.RunID+".journal.yaml")
		if err := rc.Journal.WriteYAML(journalPath); err != nil {
			logrus.Errorf("Cannot write journal: %v", err)
		}
		if runErr != nil {
			logrus.Fatalf("Simulation failed: %v", runErr)
		}

		summary := rc.Journal.Summarize()
		logrus.Infof("Simulation complete in %s: %d stages, output %s, journal %s",
			time.Since(startTime).Round(time.Millisecond), summary.StagesRun, containerPath, journalPath)
	},
}

// init sets up CLI flags and attaches `run` to `root`
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Simulation settings YAML file (required)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed override for randomized stages")
	runCmd.Flags().BoolVar(&gpu, "gpu", false, "Override GPU acceleration for the optical solver")
	runCmd.Flags().BoolVar(&skipSolver, "volumes-only", false, "Stop after volume creation; no external tools required")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}
