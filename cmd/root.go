// =============================================================================
// Marketplace Ledger - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (ledger)
//   ├── ingestCmd   (ledger ingest)
//   ├── validateCmd (ledger validate)
//   └── versionCmd  (ledger version)
//
// CONFIGURATION:
//   The root command owns the global flags (--config, --verbose). Commands
//   call loadConfig and newLogger to turn them into a run configuration and
//   a logger.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ginjaninja78/marketplace-ledger/internal/config"
	"github.com/ginjaninja78/marketplace-ledger/internal/logger"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// defaultConfigFile is read when --config is not given. A missing default
// file means built-in defaults.
const defaultConfigFile = "config.yaml"

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Marketplace Ledger - Append marketplace sales exports to the master workbook",
	Long: `Marketplace Ledger reads sales-order exports from marketplaces and appends
the closed orders as normalized rows to the "RAW DATA" sheet of a master XLSX
ledger. Product name, week number, month and year are written as live
formulas that reference the row's own cells.

Key Features:
  - One registered source format per marketplace
  - Rows appended after the last used row, in source order
  - The ledger is saved once, atomically, at the end of a run
  - Malformed records abort the run, or are skipped and logged on request

Example Usage:
  ledger ingest                        # Ingest with config.yaml or built-in defaults
  ledger ingest --config ./my.yaml     # Use a custom configuration file
  ledger ingest --dry-run              # Run everything except the save
  ledger validate                      # Check configuration, sources and ledger`,

	SilenceUsage:  true,
	SilenceErrors: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		defaultConfigFile,
		"Path to the configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the configuration named by --config. When the flag was
// not given and the default file does not exist, built-in defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	allowMissing := !cmd.Flags().Changed("config")
	return config.LoadOrDefault(cfgFile, allowMissing)
}

// newLogger builds the console logger for cfg, honoring --verbose.
func newLogger(cfg *config.Config) logger.Logger {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logger.New(logger.Config{
		Level: level,
		JSON:  cfg.LogJSON,
	})
}
