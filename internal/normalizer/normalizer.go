// =============================================================================
// Marketplace Ledger - Row Normalizer
// =============================================================================
//
// This package turns one raw marketplace export record into one ledger row.
// It is the only part of the tool with real logic; everything around it is
// file plumbing.
//
// NORMALIZATION STEPS:
//   1. Trim every field of the record
//   2. Drop the record unless its status equals the format's AcceptStatus
//   3. Copy marketplace label, status, country and product code
//   4. Coerce the sales text ("$1,660.00") to a decimal
//   5. Coerce the day/month/year date text to a date value
//   6. Build the lookup, week number, month and year formulas, all pointing
//      at cells of the row being written
//
// RESULT:
//   Normalize returns (row, accepted, err):
//   - (row, true, nil)    the record is copied forward
//   - (zero, false, nil)  the record was filtered out by status
//   - (zero, false, err)  a field is malformed (*MalformedFieldError)
//
// =============================================================================

package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ginjaninja78/marketplace-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Field names used in MalformedFieldError.Field.
const (
	FieldStatus      = "status"
	FieldCountry     = "country"
	FieldProductCode = "product_code"
	FieldSales       = "sales"
	FieldDate        = "date"
)

// Display formats applied to ledger cells.
const (
	DateNumFmt = "dd/mm/yyyy"
	YearNumFmt = "0"
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// SourceRecord is one line of a marketplace export, in source column order.
type SourceRecord []string

// Trimmed returns a copy with surrounding whitespace removed from each field.
func (r SourceRecord) Trimmed() SourceRecord {
	out := make(SourceRecord, len(r))
	for i, v := range r {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// NormalizedRow is one ledger row ready to append.
type NormalizedRow struct {
	// Row is the 1-based ledger row every formula refers to.
	Row int

	Marketplace string
	Status      string
	Country     string
	ProductCode string
	ProductName string // formula
	Sales       decimal.Decimal
	Date        time.Time
	WeekNumber  string // formula
	Month       string // formula
	Year        string // formula
}

// Cells renders the row as ledger cells placed according to layout.
func (r NormalizedRow) Cells(layout LedgerLayout) []ledger.Cell {
	return []ledger.Cell{
		{Column: int(layout.Marketplace), Value: r.Marketplace},
		{Column: int(layout.Status), Value: r.Status},
		{Column: int(layout.Country), Value: r.Country},
		{Column: int(layout.ProductCode), Value: r.ProductCode},
		{Column: int(layout.ProductName), Formula: r.ProductName},
		{Column: int(layout.Sales), Value: r.Sales.InexactFloat64()},
		{Column: int(layout.Date), Value: r.Date, NumFmt: DateNumFmt},
		{Column: int(layout.WeekNumber), Formula: r.WeekNumber},
		{Column: int(layout.Month), Formula: r.Month},
		{Column: int(layout.Year), Formula: r.Year, NumFmt: YearNumFmt},
	}
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalizer converts records of one source format. It holds no state that
// changes between calls.
type Normalizer struct {
	format      Format
	layout      LedgerLayout
	lookupRange string
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithLayout overrides the ledger column layout.
func WithLayout(layout LedgerLayout) Option {
	return func(n *Normalizer) {
		n.layout = layout
	}
}

// WithLookupRange overrides the product lookup table range ("SKU!A:B").
func WithLookupRange(rng string) Option {
	return func(n *Normalizer) {
		if rng != "" {
			n.lookupRange = rng
		}
	}
}

// New creates a Normalizer for format.
func New(format Format, opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		format:      format,
		layout:      DefaultLedgerLayout(),
		lookupRange: DefaultLookupRange,
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := format.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("format %s: %w", format.ID, err)
	}
	if err := n.layout.Validate(); err != nil {
		return nil, err
	}
	if n.format.DateLayout == "" {
		n.format.DateLayout = DayMonthYear
	}

	return n, nil
}

// ForFormat looks id up in the registry and creates its Normalizer.
func ForFormat(id string, opts ...Option) (*Normalizer, error) {
	format, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	return New(format, opts...)
}

// Format returns the source format this normalizer handles.
func (n *Normalizer) Format() Format {
	return n.format
}

// Layout returns the ledger layout rows are placed with.
func (n *Normalizer) Layout() LedgerLayout {
	return n.layout
}

// Normalize converts raw into the row that will be written at targetRow.
func (n *Normalizer) Normalize(raw SourceRecord, targetRow int) (NormalizedRow, bool, error) {
	if targetRow < 1 {
		return NormalizedRow{}, false, fmt.Errorf("%w: got %d", ErrInvalidTargetRow, targetRow)
	}

	rec := raw.Trimmed()
	for _, f := range n.format.Schema.fields() {
		if int(f.col) >= len(rec) {
			return NormalizedRow{}, false, &MalformedFieldError{
				Field: f.name,
				Err:   fmt.Errorf("%w: need column %d, have %d fields", ErrShortRecord, f.col, len(rec)),
			}
		}
	}

	schema := n.format.Schema
	status := rec[schema.Status]
	if status != n.format.AcceptStatus {
		return NormalizedRow{}, false, nil
	}

	salesText := rec[schema.Sales]
	sales, err := ParseCurrency(salesText)
	if err != nil {
		return NormalizedRow{}, false, &MalformedFieldError{Field: FieldSales, Value: salesText, Err: err}
	}

	dateText := rec[schema.Date]
	date, err := ParseDate(dateText, n.format.DateLayout)
	if err != nil {
		return NormalizedRow{}, false, &MalformedFieldError{Field: FieldDate, Value: dateText, Err: err}
	}

	dateCell := n.layout.Date.CellRef(targetRow)
	productCell := n.layout.ProductCode.CellRef(targetRow)

	return NormalizedRow{
		Row:         targetRow,
		Marketplace: n.format.Label,
		Status:      status,
		Country:     rec[schema.Country],
		ProductCode: rec[schema.ProductCode],
		ProductName: ProductNameFormula(productCell, n.lookupRange),
		Sales:       sales,
		Date:        date,
		WeekNumber:  WeekNumberFormula(dateCell),
		Month:       MonthFormula(dateCell),
		Year:        YearFormula(dateCell),
	}, true, nil
}
