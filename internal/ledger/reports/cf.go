package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/money"
)

// CashFlowMethod selects how the statement is computed.
type CashFlowMethod string

const (
	MethodDirect   CashFlowMethod = "DIRECT"
	MethodIndirect CashFlowMethod = "INDIRECT"
)

// Activity classifies a cash movement.
type Activity string

const (
	ActivityOperating Activity = "OPERATING"
	ActivityInvesting Activity = "INVESTING"
	ActivityFinancing Activity = "FINANCING"
)

// CashFlowLine is one labelled amount inside a section.
type CashFlowLine struct {
	Label  string
	Amount decimal.Decimal
}

// CashFlowSection totals the lines of one activity.
type CashFlowSection struct {
	Lines []CashFlowLine
	Total decimal.Decimal
}

func (s *CashFlowSection) add(label string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	s.Lines = append(s.Lines, CashFlowLine{Label: label, Amount: amount})
	s.Total = s.Total.Add(amount)
}

// CashFlow is the statement of cash flows. beginning + netChange = ending
// is a hard invariant: Check reports it and the difference is never
// suppressed.
type CashFlow struct {
	Method               CashFlowMethod
	Operating            CashFlowSection
	Investing            CashFlowSection
	Financing            CashFlowSection
	NetIncome            decimal.Decimal
	BeginningCashBalance decimal.Decimal
	NetChangeInCash      decimal.Decimal
	EndingCashBalance    decimal.Decimal
	Reconciles           bool
	Difference           decimal.Decimal
	Currency             string
	FromDate             time.Time
	AsOfDate             time.Time
	GeneratedAt          time.Time
}

// ClassifiedMovement is a cash movement with its activity, used by the
// direct method. Positive amounts are inflows.
type ClassifiedMovement struct {
	Label    string
	Activity Activity
	Amount   decimal.Decimal
}

// BuildCashFlowDirect assembles the statement straight from classified cash
// account movements.
func BuildCashFlowDirect(tb TrialBalance, cashAccountIDs []int64, movements []ClassifiedMovement) CashFlow {
	cf := newCashFlow(MethodDirect, tb, cashAccountIDs)
	for _, m := range movements {
		switch m.Activity {
		case ActivityInvesting:
			cf.Investing.add(m.Label, m.Amount)
		case ActivityFinancing:
			cf.Financing.add(m.Label, m.Amount)
		default:
			cf.Operating.add(m.Label, m.Amount)
		}
	}
	return cf.finish(tb.Currency)
}

// BuildCashFlowIndirect reconciles net income to cash movement using the
// trial balance's working-capital deltas. netIncome must be the income
// statement's figure for the same window.
func BuildCashFlowIndirect(tb TrialBalance, netIncome decimal.Decimal, cashAccountIDs []int64) CashFlow {
	cf := newCashFlow(MethodIndirect, tb, cashAccountIDs)
	cf.NetIncome = netIncome
	cf.Operating.add("Net income", netIncome)

	cash := make(map[int64]bool, len(cashAccountIDs))
	for _, id := range cashAccountIDs {
		cash[id] = true
	}
	for _, row := range tb.Rows {
		if row.IsHeader || cash[row.AccountID] {
			continue
		}
		delta := row.ClosingBalance.Sub(row.OpeningBalance)
		if delta.IsZero() {
			continue
		}
		switch row.Type {
		case accounts.TypeAsset:
			if row.Category == accounts.CategoryNonCurrent {
				cf.Investing.add(row.Name, delta.Neg())
			} else {
				cf.Operating.add("Change in "+row.Name, delta.Neg())
			}
		case accounts.TypeLiability:
			if row.Category == accounts.CategoryNonCurrent {
				cf.Financing.add(row.Name, delta)
			} else {
				cf.Operating.add("Change in "+row.Name, delta)
			}
		case accounts.TypeEquity:
			cf.Financing.add(row.Name, delta)
		}
		// Revenue and expense deltas are already inside net income.
	}
	return cf.finish(tb.Currency)
}

func newCashFlow(method CashFlowMethod, tb TrialBalance, cashAccountIDs []int64) CashFlow {
	cf := CashFlow{
		Method:      method,
		Currency:    tb.Currency,
		FromDate:    tb.FromDate,
		AsOfDate:    tb.AsOfDate,
		GeneratedAt: tb.GeneratedAt,
	}
	for _, id := range cashAccountIDs {
		if row, ok := tb.Row(id); ok {
			cf.BeginningCashBalance = cf.BeginningCashBalance.Add(row.OpeningBalance)
			cf.EndingCashBalance = cf.EndingCashBalance.Add(row.ClosingBalance)
		}
	}
	return cf
}

func (cf CashFlow) finish(currency string) CashFlow {
	cf.NetChangeInCash = cf.Operating.Total.Add(cf.Investing.Total).Add(cf.Financing.Total)
	cf.Difference = cf.BeginningCashBalance.Add(cf.NetChangeInCash).Sub(cf.EndingCashBalance)
	cf.Reconciles = cf.Difference.Abs().LessThanOrEqual(money.MinorUnit(currency))
	return cf
}
