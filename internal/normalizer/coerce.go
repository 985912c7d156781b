package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DayMonthYear accepts both "1/11/2013" and "01/11/2013".
const DayMonthYear = "2/1/2006"

var currencyStripper = strings.NewReplacer("$", "", ",", "")

// ParseCurrency strips every "$" and "," and parses the rest as a decimal.
// Anything else left in the text is an error; nothing is coerced to zero.
func ParseCurrency(s string) (decimal.Decimal, error) {
	cleaned := currencyStripper.Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %w", err)
	}
	return d, nil
}

// ParseDate parses s strictly with layout and returns midnight UTC of that day.
func ParseDate(s, layout string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a date in layout %q: %w", layout, err)
	}
	return t, nil
}
