// =============================================================================
// Marketplace Ledger - Ingest Runner
// =============================================================================
//
// This module drives one ingest run. It owns the ledger row cursor and
// threads it through every source in configured order.
//
// INGEST PIPELINE:
//   1. Resolve every configured source to its normalizer
//   2. Open and lock the ledger, read the first unused row
//   3. Stream each source through its normalizer, appending accepted rows
//      at the cursor (cursor + 1 per accepted row)
//   4. Save the ledger once
//   5. Archive the sources, write the error log and the summary
//
// FAILURE ATOMICITY:
//   Rows are only appended in memory until step 4. A run that fails or is
//   cancelled before the save leaves the ledger file untouched.
//
// =============================================================================

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ginjaninja78/marketplace-ledger/internal/config"
	"github.com/ginjaninja78/marketplace-ledger/internal/csvparser"
	"github.com/ginjaninja78/marketplace-ledger/internal/ledger"
	"github.com/ginjaninja78/marketplace-ledger/internal/logger"
	"github.com/ginjaninja78/marketplace-ledger/internal/normalizer"
	"github.com/ginjaninja78/marketplace-ledger/pkg/utils"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrorTypeMalformedField is the error log type of skipped records.
const ErrorTypeMalformedField = "malformed_field"

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of one run. It is returned even when the
// run fails, with the counters reached so far.
type Result struct {
	// RunID identifies the run in logs and file names.
	RunID string

	LedgerPath string
	Sheet      string

	// FirstRow and LastRow are the ledger rows appended by a completed run.
	// Both are 0 when no record was accepted or the run failed.
	FirstRow int
	LastRow  int

	// NextRow is the cursor after the last accepted row.
	NextRow int

	// Sources holds one entry per processed source, in configured order.
	Sources []SourceStats

	DryRun bool

	// Saved reports whether the ledger file was written.
	Saved bool

	// ErrorLogPath is set when skipped records were written to an error log.
	ErrorLogPath string

	// SummaryPath is set when a summary file was written.
	SummaryPath string

	Duration time.Duration
}

// RowsWritten returns the number of ledger rows appended by the run.
func (r *Result) RowsWritten() int {
	if r.FirstRow == 0 {
		return 0
	}
	return r.LastRow - r.FirstRow + 1
}

// SourceStats contains the counters of one source file.
type SourceStats struct {
	Path   string
	Format string

	// Read is the number of non-empty records read.
	Read int

	// Accepted records became ledger rows.
	Accepted int

	// Filtered records did not have the accepted status.
	Filtered int

	// Skipped records were malformed and skipped under the skip policy.
	Skipped int

	// ArchivePath is set when the source was archived.
	ArchivePath string
}

// =============================================================================
// RUNNER STRUCTURE
// =============================================================================

// Runner executes ingest runs for one configuration.
type Runner struct {
	cfg    *config.Config
	fs     afero.Fs
	logger logger.Logger
	now    func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithFs sets the filesystem sources, logs and archives are accessed on.
// The ledger workbook itself is always read from the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(r *Runner) {
		r.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// New creates a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		logger: logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sourcePlan is a configured source paired with its normalizer.
type sourcePlan struct {
	source     config.SourceConfig
	normalizer *normalizer.Normalizer
}

// run holds the state shared by the sources of one run. The cursor is not
// part of it; it is passed in and returned explicitly.
type run struct {
	fs      afero.Fs
	store   *ledger.Store
	log     logger.Logger
	skipped []utils.ErrorLogEntry
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the ingest pipeline.
//
// RETURNS:
//   - The run Result; never nil.
//   - The first error that stopped the run. With the abort policy this is a
//     *normalizer.MalformedFieldError for the first malformed record.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := r.now()
	runID := uuid.NewString()
	log := r.logger.With("run_id", runID)

	result := &Result{
		RunID:      runID,
		LedgerPath: r.cfg.Ledger.Path,
		Sheet:      r.cfg.Ledger.Sheet,
		DryRun:     r.cfg.DryRun,
	}

	files := utils.NewFileManager(r.fs, r.cfg.LogsDir, r.cfg.ArchiveDir)
	files.UseTimestampSubdirs = r.cfg.ArchiveDated

	err := r.execute(ctx, log, files, result)
	result.Duration = r.now().Sub(start)

	if err != nil {
		log.Error("ingest failed", "err", err)
	}

	if r.cfg.WriteSummary {
		summary := summarize(result, start, r.now(), err)
		path, serr := files.WriteSummaryLog(summary)
		if serr != nil {
			log.Warn("failed to write summary", "err", serr)
		} else {
			result.SummaryPath = path
			log.Debug("summary written", "path", path)
		}
	}

	return result, err
}

// execute runs the pipeline steps and fills result as it goes.
func (r *Runner) execute(ctx context.Context, log logger.Logger, files *utils.FileManager, result *Result) error {
	// An unusable logs or archive directory fails the run before any row
	// is appended.
	if err := files.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 1: RESOLVE SOURCES
	// =========================================================================
	// Unknown or unimplemented formats fail before the ledger is touched.

	plans, err := r.resolveSources()
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: OPEN LEDGER
	// =========================================================================

	store, err := ledger.Open(r.cfg.Ledger.Path, r.cfg.Ledger.Sheet)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("failed to close ledger", "err", cerr)
		}
	}()

	cursor, err := store.NextRow()
	if err != nil {
		return err
	}
	firstRow := cursor
	result.NextRow = cursor

	log.Info("ingest started", "ledger", store.Path(), "sheet", store.Sheet(), "next_row", cursor, "sources", len(plans))

	// =========================================================================
	// STEP 3: INGEST SOURCES
	// =========================================================================

	rn := &run{fs: r.fs, store: store, log: log}

	var ingestErr error
	for _, plan := range plans {
		stats := SourceStats{Path: plan.source.Path, Format: plan.source.Format}

		cursor, ingestErr = rn.ingestSource(ctx, plan, cursor, &stats, r.cfg.OnMalformed)
		result.Sources = append(result.Sources, stats)

		if ingestErr != nil {
			break
		}

		log.Info("source ingested", "source", stats.Path, "read", stats.Read,
			"accepted", stats.Accepted, "filtered", stats.Filtered, "skipped", stats.Skipped)
	}

	result.NextRow = cursor

	if len(rn.skipped) > 0 {
		path, err := files.WriteErrorLog(result.RunID, rn.skipped)
		if err != nil {
			log.Warn("failed to write error log", "err", err)
		} else {
			result.ErrorLogPath = path
			log.Warn("skipped malformed records", "count", len(rn.skipped), "error_log", path)
		}
	}

	if ingestErr != nil {
		return ingestErr
	}

	if cursor > firstRow {
		result.FirstRow = firstRow
		result.LastRow = cursor - 1
	}

	// =========================================================================
	// STEP 4: SAVE LEDGER
	// =========================================================================

	if r.cfg.DryRun {
		log.Info("dry run, ledger not saved", "rows", result.RowsWritten())
		return nil
	}

	if result.RowsWritten() > 0 {
		if err := store.Save(); err != nil {
			result.FirstRow, result.LastRow = 0, 0
			return err
		}
		result.Saved = true
		log.Info("ledger saved", "path", store.Path(), "first_row", result.FirstRow, "last_row", result.LastRow)
	} else {
		log.Info("no rows to append, ledger unchanged")
	}

	// =========================================================================
	// STEP 5: ARCHIVE SOURCES
	// =========================================================================

	if r.cfg.ArchiveDir == "" {
		return nil
	}

	for i := range result.Sources {
		stats := &result.Sources[i]
		archived, err := files.ArchiveSource(stats.Path, result.RunID)
		if err != nil {
			log.Warn("failed to archive source", "source", stats.Path, "err", err)
			continue
		}
		stats.ArchivePath = archived
		log.Debug("source archived", "source", stats.Path, "archive", archived)
	}

	return nil
}

// resolveSources pairs every configured source with its normalizer and
// checks that the source file exists.
func (r *Runner) resolveSources() ([]sourcePlan, error) {
	plans := make([]sourcePlan, 0, len(r.cfg.Sources))

	for i, src := range r.cfg.Sources {
		n, err := normalizer.ForFormat(src.Format, normalizer.WithLookupRange(r.cfg.Ledger.LookupRange))
		if err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i+1, src.Path, err)
		}
		if !utils.FileExists(r.fs, src.Path) {
			return nil, fmt.Errorf("source %d: file not found: %s", i+1, src.Path)
		}
		plans = append(plans, sourcePlan{source: src, normalizer: n})
	}

	return plans, nil
}

// =============================================================================
// SOURCE PROCESSING
// =============================================================================

// ingestSource streams one source into the ledger starting at cursor.
//
// PARAMETERS:
//   - plan: The source and its normalizer.
//   - cursor: The ledger row the next accepted record is written to.
//   - stats: Counters for this source, updated in place.
//   - onMalformed: config.MalformedAbort or config.MalformedSkip.
//
// RETURNS:
//   - The cursor after the last accepted record of this source.
//   - An error if reading, normalizing (abort policy) or appending fails.
func (rn *run) ingestSource(ctx context.Context, plan sourcePlan, cursor int, stats *SourceStats, onMalformed string) (int, error) {
	path := plan.source.Path
	log := rn.log.With("source", path, "format", plan.source.Format)

	parser, err := csvparser.NewStreamingParser(rn.fs, path, plan.source.CSVSettings)
	if err != nil {
		return cursor, err
	}
	defer parser.Close()

	layout := plan.normalizer.Layout()

	for parser.Next() {
		if err := ctx.Err(); err != nil {
			return cursor, fmt.Errorf("ingest cancelled: %w", err)
		}

		stats.Read++

		row, accepted, err := plan.normalizer.Normalize(parser.Record(), cursor)
		if err != nil {
			var mf *normalizer.MalformedFieldError
			if !errors.As(err, &mf) {
				return cursor, fmt.Errorf("%s: line %d: %w", path, parser.Line(), err)
			}
			mf.Source = path
			mf.Line = parser.Line()

			if onMalformed != config.MalformedSkip {
				return cursor, mf
			}

			stats.Skipped++
			log.Warn("skipping malformed record", "line", mf.Line, "field", mf.Field, "value", mf.Value, "err", mf.Err)
			rn.skipped = append(rn.skipped, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     path,
				ErrorType:    ErrorTypeMalformedField,
				ErrorMessage: mf.Error(),
				LineNumber:   mf.Line,
				FieldName:    mf.Field,
				FieldValue:   mf.Value,
			})
			continue
		}

		if !accepted {
			stats.Filtered++
			log.Debug("record filtered", "line", parser.Line())
			continue
		}

		if err := rn.store.AppendRow(cursor, row.Cells(layout)); err != nil {
			return cursor, fmt.Errorf("failed to append row %d: %w", cursor, err)
		}
		log.Debug("row appended", "line", parser.Line(), "row", cursor)

		stats.Accepted++
		cursor++
	}

	if err := parser.Err(); err != nil {
		return cursor, fmt.Errorf("failed to read source: %w", err)
	}

	return cursor, nil
}

// summarize converts a result into the summary file layout.
func summarize(result *Result, start, end time.Time, runErr error) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		RunID:      result.RunID,
		StartTime:  start,
		EndTime:    end,
		LedgerPath: result.LedgerPath,
		Sheet:      result.Sheet,
		DryRun:     result.DryRun,
		Saved:      result.Saved,
		FirstRow:   result.FirstRow,
		LastRow:    result.LastRow,
	}
	for _, s := range result.Sources {
		summary.Sources = append(summary.Sources, utils.SourceSummary{
			Path:        s.Path,
			Format:      s.Format,
			Read:        s.Read,
			Accepted:    s.Accepted,
			Filtered:    s.Filtered,
			Skipped:     s.Skipped,
			ArchivePath: s.ArchivePath,
		})
	}
	if runErr != nil {
		summary.Failure = runErr.Error()
	}
	return summary
}
