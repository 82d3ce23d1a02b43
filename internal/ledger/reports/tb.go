// Package reports derives every financial statement from posted journal
// lines plus the chart of accounts. Nothing here maintains its own totals:
// reports are pure projections and always rebuildable.
package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/money"
)

// AccountBalance is one leaf account's aggregated posted amounts: opening
// covers everything before the window, debits/credits the window itself.
type AccountBalance struct {
	AccountID      int64
	Code           string
	Name           string
	Type           accounts.AccountType
	Category       accounts.Category
	ParentID       *int64
	Level          int
	Currency       string
	OpeningDebits  decimal.Decimal
	OpeningCredits decimal.Decimal
	PeriodDebits   decimal.Decimal
	PeriodCredits  decimal.Decimal
}

// TrialBalanceRow is one account in the trial balance. Header rows are
// rollups of their descendants and never carry direct postings.
type TrialBalanceRow struct {
	AccountID      int64
	Code           string
	Name           string
	Type           accounts.AccountType
	Category       accounts.Category
	Level          int
	IsHeader       bool
	NormalBalance  accounts.NormalBalance
	Currency       string
	OpeningBalance decimal.Decimal
	PeriodDebits   decimal.Decimal
	PeriodCredits  decimal.Decimal
	ClosingBalance decimal.Decimal
}

// TrialBalance is the point-in-time aggregation every downstream report
// consumes.
type TrialBalance struct {
	Rows          []TrialBalanceRow
	TotalDebits   decimal.Decimal
	TotalCredits  decimal.Decimal
	ClosingDebit  decimal.Decimal
	ClosingCredit decimal.Decimal
	IsBalanced    bool
	Difference    decimal.Decimal
	Currency      string
	FromDate      time.Time
	AsOfDate      time.Time
	GeneratedAt   time.Time
}

// signedBalance orients raw debit/credit sums onto the account's normal
// side: positive means the account carries its usual balance.
func signedBalance(normal accounts.NormalBalance, debits, credits decimal.Decimal) decimal.Decimal {
	if normal == accounts.NormalDebit {
		return debits.Sub(credits)
	}
	return credits.Sub(debits)
}

// BuildTrialBalance computes opening + period movement = closing for every
// leaf account and rolls leaf balances up into header rows. The balance
// check compares closing debit-side and credit-side totals at minor-unit
// precision; an imbalance is reported, never hidden.
func BuildTrialBalance(balances []AccountBalance, coa accounts.Map, currency string, from, asOf time.Time, generatedAt time.Time) TrialBalance {
	tb := TrialBalance{Currency: currency, FromDate: from, AsOfDate: asOf, GeneratedAt: generatedAt}
	children := coa.ChildIndex()

	leafRows := make(map[int64]TrialBalanceRow, len(balances))
	for _, b := range balances {
		normal := b.Type.NormalBalance()
		opening := signedBalance(normal, b.OpeningDebits, b.OpeningCredits)
		movement := signedBalance(normal, b.PeriodDebits, b.PeriodCredits)
		leafRows[b.AccountID] = TrialBalanceRow{
			AccountID:      b.AccountID,
			Code:           b.Code,
			Name:           b.Name,
			Type:           b.Type,
			Category:       b.Category,
			Level:          b.Level,
			NormalBalance:  normal,
			Currency:       b.Currency,
			OpeningBalance: opening,
			PeriodDebits:   b.PeriodDebits,
			PeriodCredits:  b.PeriodCredits,
			ClosingBalance: opening.Add(movement),
		}
	}

	// Header rollups: every account with children or at level 0 aggregates
	// its leaf descendants.
	var rows []TrialBalanceRow
	for id, acc := range coa {
		isHeader := acc.Level == 0 || len(children[id]) > 0
		if !isHeader {
			if row, ok := leafRows[id]; ok {
				rows = append(rows, row)
			} else {
				// Leaf with no postings still appears with zero balances.
				rows = append(rows, TrialBalanceRow{
					AccountID: id, Code: acc.Code, Name: acc.Name, Type: acc.Type, Category: acc.Category,
					Level: acc.Level, NormalBalance: acc.Type.NormalBalance(), Currency: acc.Currency,
				})
			}
			continue
		}
		header := TrialBalanceRow{
			AccountID: id, Code: acc.Code, Name: acc.Name, Type: acc.Type, Category: acc.Category,
			Level: acc.Level, IsHeader: true, NormalBalance: acc.Type.NormalBalance(), Currency: acc.Currency,
		}
		for _, leafID := range leafDescendants(id, children, coa) {
			if row, ok := leafRows[leafID]; ok {
				header.OpeningBalance = header.OpeningBalance.Add(row.OpeningBalance)
				header.PeriodDebits = header.PeriodDebits.Add(row.PeriodDebits)
				header.PeriodCredits = header.PeriodCredits.Add(row.PeriodCredits)
				header.ClosingBalance = header.ClosingBalance.Add(row.ClosingBalance)
			}
		}
		rows = append(rows, header)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	tb.Rows = rows

	for _, row := range rows {
		if row.IsHeader {
			continue
		}
		tb.TotalDebits = tb.TotalDebits.Add(row.PeriodDebits)
		tb.TotalCredits = tb.TotalCredits.Add(row.PeriodCredits)
		if row.NormalBalance == accounts.NormalDebit {
			tb.ClosingDebit = tb.ClosingDebit.Add(row.ClosingBalance)
		} else {
			tb.ClosingCredit = tb.ClosingCredit.Add(row.ClosingBalance)
		}
	}
	tb.Difference = tb.ClosingDebit.Sub(tb.ClosingCredit)
	tb.IsBalanced = tb.Difference.Abs().LessThanOrEqual(money.MinorUnit(currency))
	return tb
}

// leafDescendants walks the subtree under id and returns leaf account ids.
func leafDescendants(id int64, children map[int64][]int64, coa accounts.Map) []int64 {
	var leaves []int64
	var walk func(int64)
	walk = func(node int64) {
		kids := children[node]
		if len(kids) == 0 {
			if node != id {
				leaves = append(leaves, node)
			}
			return
		}
		for _, kid := range kids {
			walk(kid)
		}
	}
	walk(id)
	return leaves
}

// Row returns the trial balance row for an account id, if present.
func (tb TrialBalance) Row(accountID int64) (TrialBalanceRow, bool) {
	for _, row := range tb.Rows {
		if row.AccountID == accountID {
			return row, true
		}
	}
	return TrialBalanceRow{}, false
}
