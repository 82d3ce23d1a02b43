package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/money"
)

// BalanceSheetRow is one account's closing balance in a section.
type BalanceSheetRow struct {
	AccountID int64
	Code      string
	Name      string
	Category  accounts.Category
	Balance   decimal.Decimal
}

// BalanceSheetSection holds the accounts and subtotals for assets,
// liabilities, or equity, split current / non-current.
type BalanceSheetSection struct {
	Current    []BalanceSheetRow
	NonCurrent []BalanceSheetRow
	Total      decimal.Decimal
}

// BalanceCheck exposes the accounting equation; Difference is reported
// as-is even when non-zero, never silently rounded away.
type BalanceCheck struct {
	AssetsEqualLiabilitiesPlusEquity bool
	Difference                       decimal.Decimal
}

// BalanceSheet is the structured statement of financial position.
type BalanceSheet struct {
	Assets      BalanceSheetSection
	Liabilities BalanceSheetSection
	Equity      BalanceSheetSection
	// CurrentEarnings is the income statement's net income folded into
	// equity; it is the same figure the cash flow's indirect method starts
	// from.
	CurrentEarnings decimal.Decimal
	Check           BalanceCheck
	Currency        string
	AsOfDate        time.Time
	GeneratedAt     time.Time
}

// BuildBalanceSheet projects the trial balance's closing balances into
// sections. netIncome must come from the income statement built over the
// same trial balance; the equation check then holds exactly when the ledger
// balances.
func BuildBalanceSheet(tb TrialBalance, netIncome decimal.Decimal) BalanceSheet {
	bs := BalanceSheet{Currency: tb.Currency, AsOfDate: tb.AsOfDate, GeneratedAt: tb.GeneratedAt, CurrentEarnings: netIncome}
	for _, row := range tb.Rows {
		if row.IsHeader {
			continue
		}
		bsRow := BalanceSheetRow{AccountID: row.AccountID, Code: row.Code, Name: row.Name, Balance: row.ClosingBalance}
		switch row.Type {
		case accounts.TypeAsset:
			appendByCategory(&bs.Assets, bsRow, categoryOf(row))
		case accounts.TypeLiability:
			appendByCategory(&bs.Liabilities, bsRow, categoryOf(row))
		case accounts.TypeEquity:
			appendByCategory(&bs.Equity, bsRow, accounts.CategoryNonCurrent)
		}
	}
	sortSection(&bs.Assets)
	sortSection(&bs.Liabilities)
	sortSection(&bs.Equity)
	bs.Equity.Total = bs.Equity.Total.Add(netIncome)

	diff := bs.Assets.Total.Sub(bs.Liabilities.Total.Add(bs.Equity.Total))
	bs.Check = BalanceCheck{
		AssetsEqualLiabilitiesPlusEquity: diff.Abs().LessThanOrEqual(money.MinorUnit(tb.Currency)),
		Difference:                       diff,
	}
	return bs
}

// categoryOf defaults uncategorised balance-sheet accounts to current.
func categoryOf(row TrialBalanceRow) accounts.Category {
	if row.Category == accounts.CategoryNonCurrent {
		return accounts.CategoryNonCurrent
	}
	return accounts.CategoryCurrent
}

func appendByCategory(section *BalanceSheetSection, row BalanceSheetRow, cat accounts.Category) {
	row.Category = cat
	if cat == accounts.CategoryNonCurrent {
		section.NonCurrent = append(section.NonCurrent, row)
	} else {
		section.Current = append(section.Current, row)
	}
	section.Total = section.Total.Add(row.Balance)
}

func sortSection(section *BalanceSheetSection) {
	sort.Slice(section.Current, func(i, j int) bool { return section.Current[i].Code < section.Current[j].Code })
	sort.Slice(section.NonCurrent, func(i, j int) bool { return section.NonCurrent[i].Code < section.NonCurrent[j].Code })
}
