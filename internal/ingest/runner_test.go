package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ginjaninja78/marketplace-ledger/internal/config"
	"github.com/ginjaninja78/marketplace-ledger/internal/ledger"
	"github.com/ginjaninja78/marketplace-ledger/internal/normalizer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sheet = "RAW DATA"

// exportLine builds one 14-column marketplace 1 export line, quoting
// fields the way a spreadsheet export does.
func exportLine(date, country, product, sales, status string) string {
	fields := []string{"Government", date, country, product, "Carretera", "None", "1618.5", "$3.00", "$20.00", "$32,370.00", sales, "$16,185.00", "$16,185.00", status}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		panic(err)
	}
	w.Flush()
	return strings.TrimSuffix(buf.String(), "\n")
}

func exportFile(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

const exportHeader = "Segment,Date,Country,Product,Discount Band,Units Sold,Manufacturing Price,Sale Price,Gross Sales,Discounts,Sales,COGS,Profit,Status"

// newLedger writes a workbook whose RAW DATA sheet has usedRows used rows.
func newLedger(t *testing.T, usedRows int) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	_, err := f.NewSheet("SKU")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("SKU", "A1", &[]any{"123456-03", "Widget"}))

	for row := 1; row <= usedRows; row++ {
		cell, err := excelize.CoordinatesToCellName(1, row)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &[]any{"existing", row}))
	}

	path := filepath.Join(t.TempDir(), "master.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func newConfig(ledgerPath string, sources ...string) *config.Config {
	cfg := config.Default()
	cfg.Ledger.Path = ledgerPath
	cfg.LogsDir = "/logs"
	cfg.Sources = nil
	for _, src := range sources {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Format:      normalizer.FormatMarketplace1,
			Path:        src,
			CSVSettings: config.CSVSettings{Delimiter: ","},
		})
	}
	return cfg
}

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func readBytes(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func cellFormula(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellFormula(sheet, ref)
	require.NoError(t, err)
	return v
}

func cellValue(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func TestRunner_Run(t *testing.T) {
	t.Run("Should append closed records after the last used row", func(t *testing.T) {
		path := newLedger(t, 17)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(
				exportHeader,
				exportLine("1/11/2013", "Mexico", "123456-03", "$1,660.00", "Closed"),
				exportLine("2/11/2013", "Canada", "654321-01", "$5.00", "Open"),
				exportLine(" 11/1/2013 ", " France ", "111111-02", "$207,500.00", " Closed "),
			),
		})

		result, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.True(t, result.Saved)
		assert.Equal(t, 18, result.FirstRow)
		assert.Equal(t, 19, result.LastRow)
		assert.Equal(t, 20, result.NextRow)
		assert.Equal(t, 2, result.RowsWritten())
		require.Len(t, result.Sources, 1)
		assert.Equal(t, SourceStats{Path: "/in/m1.csv", Format: "marketplace1", Read: 4, Accepted: 2, Filtered: 2}, result.Sources[0])

		f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, "Marketplace 1", cellValue(t, f, "A18"))
		assert.Equal(t, "Closed", cellValue(t, f, "B18"))
		assert.Equal(t, "Mexico", cellValue(t, f, "C18"))
		assert.Equal(t, "123456-03", cellValue(t, f, "D18"))
		assert.Equal(t, "VLOOKUP(D18,SKU!A:B,2,0)", cellFormula(t, f, "E18"))
		assert.Equal(t, "1660", cellValue(t, f, "F18"))
		assert.Equal(t, "41579", cellValue(t, f, "G18"))
		assert.Equal(t, "WEEKNUM(G18,1)", cellFormula(t, f, "H18"))
		assert.Equal(t, "MONTH(G18)", cellFormula(t, f, "I18"))
		assert.Equal(t, "YEAR(G18)", cellFormula(t, f, "J18"))

		assert.Equal(t, "France", cellValue(t, f, "C19"))
		assert.Equal(t, "207500", cellValue(t, f, "F19"))
		assert.Equal(t, "41285", cellValue(t, f, "G19"))
		assert.Equal(t, "YEAR(G19)", cellFormula(t, f, "J19"))

		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		assert.Len(t, rows, 19)
	})

	t.Run("Should thread the cursor across sources in configured order", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{
			"/in/a.csv": exportFile(exportLine("1/1/2014", "A", "p1", "$1.00", "Closed")),
			"/in/b.csv": exportFile(
				exportLine("2/1/2014", "B", "p2", "$2.00", "Closed"),
				exportLine("3/1/2014", "C", "p3", "$3.00", "Closed"),
			),
		})

		result, err := New(newConfig(path, "/in/a.csv", "/in/b.csv"), WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, result.FirstRow)
		assert.Equal(t, 4, result.LastRow)

		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "A", cellValue(t, f, "C2"))
		assert.Equal(t, "B", cellValue(t, f, "C3"))
		assert.Equal(t, "C", cellValue(t, f, "C4"))
		assert.Equal(t, "VLOOKUP(D4,SKU!A:B,2,0)", cellFormula(t, f, "E4"))
	})

	t.Run("Should abort on the first malformed record without saving", func(t *testing.T) {
		path := newLedger(t, 17)
		before := readBytes(t, path)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(
				exportLine("1/11/2013", "Mexico", "123456-03", "$1,660.00", "Closed"),
				exportLine("1/11/2013", "Mexico", "123456-03", "N/A", "Closed"),
				exportLine("1/11/2013", "Mexico", "123456-03", "$3.00", "Closed"),
			),
		})

		result, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, normalizer.ErrMalformedField)
		var mf *normalizer.MalformedFieldError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, "/in/m1.csv", mf.Source)
		assert.Equal(t, 2, mf.Line)
		assert.Equal(t, normalizer.FieldSales, mf.Field)
		assert.Equal(t, "N/A", mf.Value)

		assert.False(t, result.Saved)
		assert.Zero(t, result.RowsWritten())
		assert.Equal(t, before, readBytes(t, path))
	})

	t.Run("Should skip malformed records and write an error log when configured", func(t *testing.T) {
		path := newLedger(t, 3)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(
				exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed"),
				exportLine("2013-11-01", "Mexico", "123456-03", "$2.00", "Closed"),
				exportLine("3/11/2013", "Canada", "123456-03", "$3.00", "Closed"),
			),
		})
		cfg := newConfig(path, "/in/m1.csv")
		cfg.OnMalformed = config.MalformedSkip

		result, err := New(cfg, WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.True(t, result.Saved)
		assert.Equal(t, 4, result.FirstRow)
		assert.Equal(t, 5, result.LastRow)
		assert.Equal(t, 1, result.Sources[0].Skipped)
		require.NotEmpty(t, result.ErrorLogPath)

		content, err := afero.ReadFile(fs, result.ErrorLogPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "Line Number:    2")
		assert.Contains(t, string(content), "Value:          2013-11-01")

		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "Canada", cellValue(t, f, "C5"))
	})

	t.Run("Should leave the ledger untouched on a dry run", func(t *testing.T) {
		path := newLedger(t, 17)
		before := readBytes(t, path)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})
		cfg := newConfig(path, "/in/m1.csv")
		cfg.DryRun = true
		cfg.ArchiveDir = "/archive"

		result, err := New(cfg, WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.False(t, result.Saved)
		assert.Equal(t, 18, result.FirstRow)
		assert.Equal(t, before, readBytes(t, path))
		exists, err := afero.Exists(fs, "/in/m1.csv")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Should not save when every record is filtered", func(t *testing.T) {
		path := newLedger(t, 5)
		before := readBytes(t, path)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportHeader, exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Open")),
		})

		result, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.False(t, result.Saved)
		assert.Zero(t, result.RowsWritten())
		assert.Equal(t, 6, result.NextRow)
		assert.Equal(t, before, readBytes(t, path))
	})

	t.Run("Should reject unimplemented formats before opening the ledger", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{"/in/m2.csv": "x\n"})
		cfg := newConfig(path, "/in/m2.csv")
		cfg.Sources[0].Format = normalizer.FormatMarketplace2

		result, err := New(cfg, WithFs(fs)).Run(context.Background())

		assert.ErrorIs(t, err, normalizer.ErrFormatNotImplemented)
		assert.Empty(t, result.Sources)
	})

	t.Run("Should reject unknown formats", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{"/in/x.csv": "x\n"})
		cfg := newConfig(path, "/in/x.csv")
		cfg.Sources[0].Format = "ebay"

		_, err := New(cfg, WithFs(fs)).Run(context.Background())

		assert.ErrorIs(t, err, normalizer.ErrUnknownFormat)
	})

	t.Run("Should fail when a source file is missing", func(t *testing.T) {
		path := newLedger(t, 1)

		_, err := New(newConfig(path, "/in/missing.csv"), WithFs(afero.NewMemMapFs())).Run(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "file not found")
	})

	t.Run("Should fail when another run holds the ledger", func(t *testing.T) {
		path := newLedger(t, 1)
		held, err := ledger.Open(path, sheet)
		require.NoError(t, err)
		defer held.Close()
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})

		_, err = New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		assert.ErrorIs(t, err, ledger.ErrLedgerLocked)
	})

	t.Run("Should stop without saving when the context is cancelled", func(t *testing.T) {
		path := newLedger(t, 1)
		before := readBytes(t, path)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, result.Saved)
		assert.Equal(t, before, readBytes(t, path))
	})

	t.Run("Should archive sources and write a summary after saving", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})
		cfg := newConfig(path, "/in/m1.csv")
		cfg.ArchiveDir = "/archive"
		cfg.WriteSummary = true

		result, err := New(cfg, WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/archive", "m1.csv"), result.Sources[0].ArchivePath)
		exists, err := afero.Exists(fs, "/in/m1.csv")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NotEmpty(t, result.SummaryPath)
		summary, err := afero.ReadFile(fs, result.SummaryPath)
		require.NoError(t, err)
		assert.Contains(t, string(summary), "Rows Written:   2-2")
		assert.Contains(t, string(summary), result.RunID)
	})
}

func TestRunner_Directories(t *testing.T) {
	t.Run("Should create the logs directory before ingesting", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})

		_, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		exists, err := afero.DirExists(fs, "/logs")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Should fail before touching the ledger when directories cannot be created", func(t *testing.T) {
		path := newLedger(t, 1)
		before := readBytes(t, path)
		fs := afero.NewReadOnlyFs(newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		}))

		result, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Run(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create directory")
		assert.Empty(t, result.Sources)
		assert.Equal(t, before, readBytes(t, path))
	})

	t.Run("Should archive into dated subdirectories when configured", func(t *testing.T) {
		path := newLedger(t, 1)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed")),
		})
		cfg := newConfig(path, "/in/m1.csv")
		cfg.ArchiveDir = "/archive"
		cfg.ArchiveDated = true

		result, err := New(cfg, WithFs(fs)).Run(context.Background())

		require.NoError(t, err)
		archived := result.Sources[0].ArchivePath
		assert.True(t, strings.HasPrefix(archived, "/archive/"))
		assert.Len(t, strings.Split(strings.TrimPrefix(archived, "/archive/"), "/"), 4)
		exists, err := afero.Exists(fs, archived)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestRunner_Check(t *testing.T) {
	t.Run("Should report the next row and record counts without writing", func(t *testing.T) {
		path := newLedger(t, 17)
		before := readBytes(t, path)
		fs := newFs(t, map[string]string{
			"/in/m1.csv": exportFile(
				exportHeader,
				exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Closed"),
				"",
				exportLine("1/11/2013", "Mexico", "123456-03", "$1.00", "Open"),
			),
		})

		check, err := New(newConfig(path, "/in/m1.csv"), WithFs(fs)).Check(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 18, check.NextRow)
		require.Len(t, check.Sources, 1)
		assert.Equal(t, 3, check.Sources[0].Records)
		assert.Equal(t, "Marketplace 1", check.Sources[0].Label)
		assert.Equal(t, before, readBytes(t, path))
	})
}
