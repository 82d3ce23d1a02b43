// Package tax computes per-line and per-document tax amounts. Everything
// here is pure: the posting engine feeds it document lines and receives
// grouped GL-ready tax lines back.
package tax

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/money"
)

// Line is the slice of an AR/AP document line the calculator needs.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxCode   string
	TaxRate   decimal.Decimal // e.g. 0.10 for 10%
}

// LineTax is the computed tax for one document line.
type LineTax struct {
	TaxCode string
	Amount  decimal.Decimal
}

// GroupedTax aggregates line taxes into one GL line per distinct code.
type GroupedTax struct {
	TaxCode string
	Amount  decimal.Decimal
}

// CalculateLineTax computes quantity x unit price x rate rounded to the
// currency's precision.
func CalculateLineTax(line Line, currencyCode string) LineTax {
	amount := line.Quantity.Mul(line.UnitPrice).Mul(line.TaxRate)
	return LineTax{
		TaxCode: line.TaxCode,
		Amount:  money.Round(currencyCode, amount),
	}
}

// CalculateTotalTax sums all line tax amounts.
func CalculateTotalTax(lineTaxes []LineTax) decimal.Decimal {
	total := decimal.Zero
	for _, lt := range lineTaxes {
		total = total.Add(lt.Amount)
	}
	return total
}

// GroupTaxesByCode aggregates by tax code so a single journal carries at
// most one tax line per distinct code, not one per document line. Output is
// ordered by code for deterministic journals.
func GroupTaxesByCode(lineTaxes []LineTax) []GroupedTax {
	byCode := make(map[string]decimal.Decimal)
	for _, lt := range lineTaxes {
		if lt.Amount.IsZero() {
			continue
		}
		byCode[lt.TaxCode] = byCode[lt.TaxCode].Add(lt.Amount)
	}
	grouped := make([]GroupedTax, 0, len(byCode))
	for code, amount := range byCode {
		grouped = append(grouped, GroupedTax{TaxCode: code, Amount: amount})
	}
	sort.Slice(grouped, func(i, j int) bool { return grouped[i].TaxCode < grouped[j].TaxCode })
	return grouped
}
