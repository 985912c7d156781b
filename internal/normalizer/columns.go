package normalizer

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// SourceColumn is a 0-based index into a source record (column A = 0).
type SourceColumn int

// LedgerColumn is a 1-based ledger column index (column A = 1).
type LedgerColumn int

// Letter returns the spreadsheet column name, e.g. 7 -> "G".
// It returns "" for columns outside the range excelize accepts.
func (c LedgerColumn) Letter() string {
	name, err := excelize.ColumnNumberToName(int(c))
	if err != nil {
		return ""
	}
	return name
}

// CellRef returns the A1-style address of this column in the given row.
func (c LedgerColumn) CellRef(row int) string {
	return c.Letter() + strconv.Itoa(row)
}

// =============================================================================
// SOURCE SCHEMA
// =============================================================================

// SourceSchema maps the fields a normalizer reads to their positions in a
// source record. Every format registers its own schema.
type SourceSchema struct {
	Date        SourceColumn
	Country     SourceColumn
	ProductCode SourceColumn
	Sales       SourceColumn
	Status      SourceColumn
}

// fields lists the schema in the order the normalizer reads them.
func (s SourceSchema) fields() []namedSourceColumn {
	return []namedSourceColumn{
		{FieldStatus, s.Status},
		{FieldCountry, s.Country},
		{FieldProductCode, s.ProductCode},
		{FieldSales, s.Sales},
		{FieldDate, s.Date},
	}
}

// Validate checks that every index is non-negative and unique.
func (s SourceSchema) Validate() error {
	seen := make(map[SourceColumn]string)
	for _, f := range s.fields() {
		if f.col < 0 {
			return fmt.Errorf("source column %s has negative index %d", f.name, f.col)
		}
		if other, dup := seen[f.col]; dup {
			return fmt.Errorf("source columns %s and %s share index %d", other, f.name, f.col)
		}
		seen[f.col] = f.name
	}
	return nil
}

type namedSourceColumn struct {
	name string
	col  SourceColumn
}

// =============================================================================
// LEDGER LAYOUT
// =============================================================================

// LedgerLayout maps every output field to its column in the ledger sheet.
type LedgerLayout struct {
	Marketplace LedgerColumn
	Status      LedgerColumn
	Country     LedgerColumn
	ProductCode LedgerColumn
	ProductName LedgerColumn
	Sales       LedgerColumn
	Date        LedgerColumn
	WeekNumber  LedgerColumn
	Month       LedgerColumn
	Year        LedgerColumn
}

// DefaultLedgerLayout is the column order of the "RAW DATA" sheet (A..J).
func DefaultLedgerLayout() LedgerLayout {
	return LedgerLayout{
		Marketplace: 1,
		Status:      2,
		Country:     3,
		ProductCode: 4,
		ProductName: 5,
		Sales:       6,
		Date:        7,
		WeekNumber:  8,
		Month:       9,
		Year:        10,
	}
}

// Validate checks that every column is at least 1 and unique.
func (l LedgerLayout) Validate() error {
	cols := map[string]LedgerColumn{
		"marketplace":  l.Marketplace,
		"status":       l.Status,
		"country":      l.Country,
		"product_code": l.ProductCode,
		"product_name": l.ProductName,
		"sales":        l.Sales,
		"date":         l.Date,
		"week_number":  l.WeekNumber,
		"month":        l.Month,
		"year":         l.Year,
	}

	seen := make(map[LedgerColumn]string, len(cols))
	for name, col := range cols {
		if col < 1 {
			return fmt.Errorf("ledger column %s must be >= 1, got %d", name, col)
		}
		if other, dup := seen[col]; dup {
			return fmt.Errorf("ledger columns %s and %s share index %d", other, name, col)
		}
		seen[col] = name
	}
	return nil
}
