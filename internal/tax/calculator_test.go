package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateLineTax(t *testing.T) {
	lt := CalculateLineTax(Line{
		Quantity:  d("2"),
		UnitPrice: d("500"),
		TaxCode:   "SST10",
		TaxRate:   d("0.10"),
	}, "MYR")
	require.Equal(t, "SST10", lt.TaxCode)
	require.True(t, lt.Amount.Equal(d("100")))
}

func TestCalculateLineTaxRoundsToCurrencyPrecision(t *testing.T) {
	lt := CalculateLineTax(Line{
		Quantity:  d("3"),
		UnitPrice: d("33.333"),
		TaxCode:   "SST6",
		TaxRate:   d("0.06"),
	}, "MYR")
	// 3 * 33.333 * 0.06 = 5.99994 -> 6.00
	require.True(t, lt.Amount.Equal(d("6.00")), "got %s", lt.Amount)
}

func TestCalculateTotalTax(t *testing.T) {
	total := CalculateTotalTax([]LineTax{
		{TaxCode: "SST10", Amount: d("100")},
		{TaxCode: "SST6", Amount: d("6")},
	})
	require.True(t, total.Equal(d("106")))
}

func TestGroupTaxesByCode(t *testing.T) {
	grouped := GroupTaxesByCode([]LineTax{
		{TaxCode: "SST10", Amount: d("50")},
		{TaxCode: "SST6", Amount: d("6")},
		{TaxCode: "SST10", Amount: d("50")},
		{TaxCode: "EXEMPT", Amount: d("0")},
	})
	require.Len(t, grouped, 2)
	require.Equal(t, "SST10", grouped[1].TaxCode)
	require.True(t, grouped[1].Amount.Equal(d("100")))
	require.Equal(t, "SST6", grouped[0].TaxCode)
}
