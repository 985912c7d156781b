package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillTemplate(t *testing.T) {
	t.Run("Should fill placeholders left to right", func(t *testing.T) {
		assert.Equal(t, "VLOOKUP(D18,SKU!A:B,2,0)", FillTemplate(VLookupTemplate, "D18", "SKU!A:B", "2", "0"))
	})

	t.Run("Should ignore extra params", func(t *testing.T) {
		assert.Equal(t, "MONTH(G2)", FillTemplate(MonthTemplate, "G2", "H2"))
	})

	t.Run("Should leave unfilled placeholders", func(t *testing.T) {
		assert.Equal(t, "WEEKNUM(G2,{})", FillTemplate(WeekNumTemplate, "G2"))
	})

	t.Run("Should not re-expand braces inside params", func(t *testing.T) {
		assert.Equal(t, "YEAR({})", FillTemplate(YearTemplate, "{}"))
		assert.Equal(t, "WEEKNUM({},1)", FillTemplate(WeekNumTemplate, "{}", "1"))
	})

	t.Run("Should copy a lookup range containing braces verbatim", func(t *testing.T) {
		assert.Equal(t, "VLOOKUP(D5,T{}!A:B,2,0)", ProductNameFormula("D5", "T{}!A:B"))
	})

	t.Run("Should return templates without placeholders unchanged", func(t *testing.T) {
		assert.Equal(t, "TODAY()", FillTemplate("TODAY()", "x"))
	})
}

func TestFormulaBuilders(t *testing.T) {
	t.Run("Should build each ledger formula", func(t *testing.T) {
		assert.Equal(t, "VLOOKUP(D7,SKU!A:B,2,0)", ProductNameFormula("D7", DefaultLookupRange))
		assert.Equal(t, "WEEKNUM(G7,1)", WeekNumberFormula("G7"))
		assert.Equal(t, "MONTH(G7)", MonthFormula("G7"))
		assert.Equal(t, "YEAR(G7)", YearFormula("G7"))
	})
}
