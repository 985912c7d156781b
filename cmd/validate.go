// =============================================================================
// Marketplace Ledger - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks a configuration
// without modifying anything.
//
// CHECKS:
//   1. The configuration file parses and passes validation
//   2. Every source names a registered format and exists
//   3. The ledger opens, has the target sheet and is not locked
//
// It also lists the registered source formats.
//
// =============================================================================

package cmd

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/marketplace-ledger/internal/ingest"
	"github.com/ginjaninja78/marketplace-ledger/internal/normalizer"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, sources and ledger without ingesting",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	check, err := ingest.New(cfg, ingest.WithLogger(newLogger(cfg))).Check(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ledger: %s [%s], next row %d\n", check.LedgerPath, check.Sheet, check.NextRow)
	for _, src := range check.Sources {
		fmt.Fprintf(out, "  %s: %s, %d records\n", src.Path, src.Label, src.Records)
	}
	fmt.Fprintf(out, "Available formats: %s\n", formatIDs())
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}

// formatIDs lists the registered source format ids.
func formatIDs() string {
	var ids []string
	for _, f := range normalizer.Formats() {
		ids = append(ids, f.ID)
	}
	return strings.Join(ids, ", ")
}
