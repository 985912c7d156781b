package normalizer

import "strings"

// Formula templates. Each "{}" takes one parameter, in order.
// excelize stores formulas without the leading "=".
const (
	VLookupTemplate = "VLOOKUP({},{},{},{})"
	WeekNumTemplate = "WEEKNUM({},{})"
	MonthTemplate   = "MONTH({})"
	YearTemplate    = "YEAR({})"
)

const (
	placeholder = "{}"

	// DefaultLookupRange is the product code -> product name table.
	DefaultLookupRange = "SKU!A:B"

	lookupResultColumn = "2"
	lookupExactMatch   = "0"

	// weekStartsSunday is WEEKNUM's return_type 1.
	weekStartsSunday = "1"
)

// FillTemplate substitutes params into the "{}" placeholders of template,
// left to right. Placeholders are located in template only, so braces inside
// a param are copied verbatim. Extra params are ignored; missing ones leave
// "{}" in place.
func FillTemplate(template string, params ...string) string {
	parts := strings.Split(template, placeholder)

	var b strings.Builder
	for i, part := range parts {
		b.WriteString(part)
		if i == len(parts)-1 {
			break
		}
		if i < len(params) {
			b.WriteString(params[i])
		} else {
			b.WriteString(placeholder)
		}
	}
	return b.String()
}

// ProductNameFormula looks the product code cell up in lookupRange.
func ProductNameFormula(productCodeCell, lookupRange string) string {
	return FillTemplate(VLookupTemplate, productCodeCell, lookupRange, lookupResultColumn, lookupExactMatch)
}

// WeekNumberFormula computes the week number of dateCell, weeks starting Sunday.
func WeekNumberFormula(dateCell string) string {
	return FillTemplate(WeekNumTemplate, dateCell, weekStartsSunday)
}

// MonthFormula extracts the calendar month of dateCell.
func MonthFormula(dateCell string) string {
	return FillTemplate(MonthTemplate, dateCell)
}

// YearFormula extracts the calendar year of dateCell.
func YearFormula(dateCell string) string {
	return FillTemplate(YearTemplate, dateCell)
}
