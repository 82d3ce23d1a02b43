package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
)

// IncomeStatementRow is one revenue or expense account for the window.
type IncomeStatementRow struct {
	AccountID int64
	Code      string
	Name      string
	Amount    decimal.Decimal
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Rows  []IncomeStatementRow
	Total decimal.Decimal
}

// IncomeStatement is the profit-and-loss projection. Its NetIncome is the
// single authoritative figure the balance sheet's retained earnings and the
// indirect cash flow reconciliation both consume.
type IncomeStatement struct {
	Revenue     IncomeStatementSection
	Expense     IncomeStatementSection
	NetIncome   decimal.Decimal
	Currency    string
	FromDate    time.Time
	AsOfDate    time.Time
	GeneratedAt time.Time
}

// BuildIncomeStatement aggregates revenue and expense movements from the
// trial balance's period columns. Only leaf rows contribute; headers are
// rollups and would double count.
func BuildIncomeStatement(tb TrialBalance) IncomeStatement {
	out := IncomeStatement{Currency: tb.Currency, FromDate: tb.FromDate, AsOfDate: tb.AsOfDate, GeneratedAt: tb.GeneratedAt}
	for _, row := range tb.Rows {
		if row.IsHeader {
			continue
		}
		switch row.Type {
		case accounts.TypeRevenue:
			amount := row.PeriodCredits.Sub(row.PeriodDebits)
			out.Revenue.Rows = append(out.Revenue.Rows, IncomeStatementRow{
				AccountID: row.AccountID, Code: row.Code, Name: row.Name, Amount: amount,
			})
			out.Revenue.Total = out.Revenue.Total.Add(amount)
		case accounts.TypeExpense:
			amount := row.PeriodDebits.Sub(row.PeriodCredits)
			out.Expense.Rows = append(out.Expense.Rows, IncomeStatementRow{
				AccountID: row.AccountID, Code: row.Code, Name: row.Name, Amount: amount,
			})
			out.Expense.Total = out.Expense.Total.Add(amount)
		}
	}
	sort.Slice(out.Revenue.Rows, func(i, j int) bool { return out.Revenue.Rows[i].Code < out.Revenue.Rows[j].Code })
	sort.Slice(out.Expense.Rows, func(i, j int) bool { return out.Expense.Rows[i].Code < out.Expense.Rows[j].Code })
	out.NetIncome = out.Revenue.Total.Sub(out.Expense.Total)
	return out
}
