// =============================================================================
// Marketplace Ledger - Main Entry Point
// =============================================================================
//
// This is the main entry point for the Marketplace Ledger CLI. It delegates
// command execution to the cmd package.
//
// USAGE:
//   ledger ingest    - Append marketplace exports to the master ledger
//   ledger validate  - Check configuration, sources and ledger
//   ledger version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/                 : CLI command definitions (Cobra)
//   - internal/normalizer  : Row normalization and source format registry
//   - internal/ledger      : XLSX ledger store
//   - internal/ingest      : The ingest run driver
//   - internal/csvparser   : Source file reader
//   - internal/config      : YAML configuration
//   - internal/logger      : Console logging
//   - pkg/utils            : Archive, error log and summary files
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/marketplace-ledger/cmd"
)

func main() {
	cmd.Execute()
}
