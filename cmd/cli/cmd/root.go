package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmd/haloexchange/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "haloexchange",
	Short: "A domain-decomposed particle halo-exchange engine",
	Long: `haloexchange drives a rank's Engine through the six-direction
migration and ghost-exchange protocol used by domain-decomposed
particle simulations: particle migration across process-grid
boundaries, ghost-cell construction, and per-step ghost refresh.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config.yaml (not read by any subcommand; run and serve take their settings from flags)")

	binName := BinName()
	rootCmd.Example = `  # Run a local multi-rank demo for 100 steps
  ` + binName + ` run --grid 2,1,1 --steps 100

  # Run with verbose logging
  ` + binName + ` run -v

  # Serve a status/health page over the diagnostics recorded by a run
  ` + binName + ` serve --diagnostics-db ./diagnostics.db`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
