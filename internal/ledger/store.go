// =============================================================================
// Marketplace Ledger - Ledger Store
// =============================================================================
//
// This module is the only place that touches the master XLSX workbook. It
// exposes the four operations the ingest driver needs:
//   - Open:      load the workbook and take an exclusive run lock
//   - NextRow:   find the first unused row of the target sheet
//   - AppendRow: write one row of typed cells (values, formulas, formats)
//   - Save:      persist the workbook back to the path it was loaded from
//
// SAVE STRATEGY:
//   The workbook is written to a temporary file in the same directory and
//   renamed over the original. A failed save leaves the ledger on disk
//   exactly as it was before the run.
//
// LOCKING:
//   A "<ledger>.lock" file is held with an exclusive flock for the lifetime
//   of the Store, so two runs can never compute the same first unused row.
//
// =============================================================================

package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrLedgerLocked is returned by Open when another run holds the ledger lock.
	ErrLedgerLocked = errors.New("ledger is locked by another run")

	// ErrSheetNotFound is returned by Open when the workbook has no sheet
	// with the requested name.
	ErrSheetNotFound = errors.New("sheet not found in ledger")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("ledger store is closed")
)

// =============================================================================
// CELL STRUCTURE
// =============================================================================

// Cell is one typed value destined for a ledger row.
type Cell struct {
	// Column is the 1-based column index (A=1).
	Column int

	// Value is written as a literal when Formula is empty.
	// Strings, numbers and time.Time are supported by excelize.
	Value any

	// Formula is written as a live formula (no leading "=").
	Formula string

	// NumFmt is an optional custom display format, e.g. "dd/mm/yyyy".
	NumFmt string
}

// =============================================================================
// STORE
// =============================================================================

// Store is an open ledger workbook.
type Store struct {
	path   string
	sheet  string
	file   *excelize.File
	lock   *flock.Flock
	styles map[string]int
	closed bool
}

// Open loads the workbook at path and locks it for the lifetime of the Store.
//
// PARAMETERS:
//   - path: The path to the master XLSX workbook.
//   - sheet: The name of the sheet rows are appended to (e.g. "RAW DATA").
//
// RETURNS:
//   - An open Store. The caller must Close it.
//   - ErrLedgerLocked if another run holds the lock, ErrSheetNotFound if the
//     sheet is missing, or a wrapped I/O error.
func Open(path, sheet string) (*Store, error) {
	lock := flock.New(path + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx == -1 {
		_ = f.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	return &Store{
		path:   path,
		sheet:  sheet,
		file:   f,
		lock:   lock,
		styles: make(map[string]int),
	}, nil
}

// Path returns the path the ledger was loaded from.
func (s *Store) Path() string {
	return s.path
}

// Sheet returns the target sheet name.
func (s *Store) Sheet() string {
	return s.sheet
}

// NextRow returns the 1-based index of the first unused row of the sheet.
// Trailing rows without any cell value are not counted as used.
func (s *Store) NextRow() (int, error) {
	if s.closed {
		return 0, ErrStoreClosed
	}

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read rows: %w", err)
	}

	return len(rows) + 1, nil
}

// AppendRow writes cells into the given 1-based row.
//
// PARAMETERS:
//   - row: The target row. The caller owns the cursor; the store does not
//     check that the row is unused.
//   - cells: The cells to write. Formula takes precedence over Value.
//
// RETURNS:
//   - An error if any cell reference, value, formula or style is rejected.
func (s *Store) AppendRow(row int, cells []Cell) error {
	if s.closed {
		return ErrStoreClosed
	}
	if row < 1 {
		return fmt.Errorf("invalid row %d", row)
	}

	for _, cell := range cells {
		ref, err := excelize.CoordinatesToCellName(cell.Column, row)
		if err != nil {
			return fmt.Errorf("invalid cell (%d,%d): %w", cell.Column, row, err)
		}

		if cell.Formula != "" {
			if err := s.file.SetCellFormula(s.sheet, ref, cell.Formula); err != nil {
				return fmt.Errorf("failed to set formula at %s: %w", ref, err)
			}
		} else {
			if err := s.file.SetCellValue(s.sheet, ref, cell.Value); err != nil {
				return fmt.Errorf("failed to set value at %s: %w", ref, err)
			}
		}

		if cell.NumFmt == "" {
			continue
		}

		styleID, err := s.style(cell.NumFmt)
		if err != nil {
			return err
		}
		if err := s.file.SetCellStyle(s.sheet, ref, ref, styleID); err != nil {
			return fmt.Errorf("failed to set style at %s: %w", ref, err)
		}
	}

	return nil
}

// style returns the style id for a custom number format, creating it once.
func (s *Store) style(numFmt string) (int, error) {
	if id, ok := s.styles[numFmt]; ok {
		return id, nil
	}

	format := numFmt
	id, err := s.file.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return 0, fmt.Errorf("failed to create style %q: %w", numFmt, err)
	}

	s.styles[numFmt] = id
	return id, nil
}

// Save writes the workbook back to its original path.
//
// SAVE PROCESS:
//   1. Write the workbook to ".<name>.<uuid>.tmp" in the ledger directory
//   2. Fsync and close the temporary file
//   3. Copy the original file mode
//   4. Rename the temporary file over the ledger
//
// On failure the temporary file is removed and the ledger is unchanged.
func (s *Store) Save() error {
	if s.closed {
		return ErrStoreClosed
	}

	dir := filepath.Dir(s.path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.NewString()))

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := writeAndSync(s.file, out); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if info, err := os.Stat(s.path); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	return nil
}

func writeAndSync(f *excelize.File, out *os.File) error {
	if _, err := f.WriteTo(out); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return nil
}

// Close releases the workbook and the run lock. It is safe to call more
// than once.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release ledger lock: %w", err))
	}

	return errors.Join(errs...)
}
