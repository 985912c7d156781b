package ingest

import (
	"context"
	"fmt"

	"github.com/ginjaninja78/marketplace-ledger/internal/csvparser"
	"github.com/ginjaninja78/marketplace-ledger/internal/ledger"
)

// CheckResult describes what a run would start from.
type CheckResult struct {
	LedgerPath string
	Sheet      string
	NextRow    int
	Sources    []SourceCheck
}

// SourceCheck describes one resolved source.
type SourceCheck struct {
	Path   string
	Format string
	Label  string

	// Records is the number of non-empty records in the file.
	Records int
}

// Check resolves every source, counts its records and reads the first
// unused ledger row without writing anything. It takes the ledger lock for
// the duration of the check.
func (r *Runner) Check(ctx context.Context) (*CheckResult, error) {
	plans, err := r.resolveSources()
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		LedgerPath: r.cfg.Ledger.Path,
		Sheet:      r.cfg.Ledger.Sheet,
	}

	for _, plan := range plans {
		count, err := r.countRecords(ctx, plan)
		if err != nil {
			return nil, err
		}
		result.Sources = append(result.Sources, SourceCheck{
			Path:    plan.source.Path,
			Format:  plan.source.Format,
			Label:   plan.normalizer.Format().Label,
			Records: count,
		})
	}

	store, err := ledger.Open(r.cfg.Ledger.Path, r.cfg.Ledger.Sheet)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	result.NextRow, err = store.NextRow()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Runner) countRecords(ctx context.Context, plan sourcePlan) (int, error) {
	parser, err := csvparser.NewStreamingParser(r.fs, plan.source.Path, plan.source.CSVSettings)
	if err != nil {
		return 0, err
	}
	defer parser.Close()

	for parser.Next() {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("check cancelled: %w", err)
		}
	}
	if err := parser.Err(); err != nil {
		return 0, fmt.Errorf("failed to read source: %w", err)
	}
	return parser.Count(), nil
}
