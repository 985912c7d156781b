// =============================================================================
// Marketplace Ledger - Ingest Command
// =============================================================================
//
// This file defines the 'ingest' command, the main command of the tool. It
// appends every configured marketplace export to the master ledger.
//
// COMMAND USAGE:
//   ledger ingest [flags]
//
// FLAGS:
//   --dry-run       : Run the full pipeline without saving the ledger
//   --on-malformed  : "abort" (default) or "skip" malformed records
//
// EXIT STATUS:
//   0 when the run completed (including runs that appended no rows),
//   1 on any error. An aborted run never modifies the ledger file.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/ginjaninja78/marketplace-ledger/internal/ingest"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun runs everything except the save and archival.
var dryRun bool

// onMalformed overrides the configured malformed record policy.
var onMalformed string

// =============================================================================
// INGEST COMMAND DEFINITION
// =============================================================================

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Append marketplace exports to the master ledger",
	Long: `The ingest command reads every configured source file, keeps the records
whose status is "Closed", and appends them to the ledger starting at the
first unused row. The ledger is locked for the duration of the run and saved
once at the end.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run without saving the ledger or archiving sources")
	ingestCmd.Flags().StringVar(&onMalformed, "on-malformed", "", "Malformed record policy: abort or skip (overrides config)")

	rootCmd.AddCommand(ingestCmd)
}

// runIngest is the main function for the ingest command.
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if onMalformed != "" {
		cfg.OnMalformed = onMalformed
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := ingest.New(cfg, ingest.WithLogger(log)).Run(ctx)
	printResult(cmd, result)
	return err
}

// printResult writes a short report of the run to stdout.
func printResult(cmd *cobra.Command, result *ingest.Result) {
	if result == nil {
		return
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\nLedger: %s [%s]\n", result.LedgerPath, result.Sheet)
	for _, src := range result.Sources {
		fmt.Fprintf(out, "  %s (%s): %d read, %d appended, %d filtered, %d skipped\n",
			src.Path, src.Format, src.Read, src.Accepted, src.Filtered, src.Skipped)
	}

	switch {
	case result.RowsWritten() > 0 && result.Saved:
		fmt.Fprintf(out, "Appended rows %d-%d in %s\n", result.FirstRow, result.LastRow, result.Duration)
	case result.RowsWritten() > 0 && result.DryRun:
		fmt.Fprintf(out, "Dry run: rows %d-%d were not saved\n", result.FirstRow, result.LastRow)
	case len(result.Sources) > 0:
		fmt.Fprintln(out, "No rows appended")
	}

	if result.ErrorLogPath != "" {
		fmt.Fprintf(out, "Error log: %s\n", result.ErrorLogPath)
	}
	if result.SummaryPath != "" {
		fmt.Fprintf(out, "Summary:   %s\n", result.SummaryPath)
	}
}
