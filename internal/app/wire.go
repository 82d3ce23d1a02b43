package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ap"
	"github.com/meridian-books/meridian/internal/ar"
	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/ledger/reports"
	"github.com/meridian-books/meridian/internal/shared"
)

// The adapters below bridge module ports at composition time so the domain
// packages stay free of cross-module imports.

// JournalGateAdapter answers the period close checklist from the journal
// repository: anything not yet posted blocks the close.
type JournalGateAdapter struct {
	Repo journals.Repository
}

func (a JournalGateAdapter) UnpostedCount(ctx context.Context, scope shared.Scope, periodID int64) (int64, error) {
	return a.Repo.CountByStatusInPeriod(ctx, scope, periodID, []journals.Status{
		journals.StatusDraft,
		journals.StatusPendingApproval,
	})
}

// TrialBalancerAdapter computes the close-check trial balance over the
// period's window.
type TrialBalancerAdapter struct {
	Periods  periods.Repository
	Reports  *reports.Service
	Currency string
}

func (a TrialBalancerAdapter) PeriodTrialBalance(ctx context.Context, scope shared.Scope, periodID int64) (periods.TrialBalanceSummary, error) {
	period, err := a.Periods.Get(ctx, scope, periodID)
	if err != nil {
		return periods.TrialBalanceSummary{}, err
	}
	tb, err := a.Reports.TrialBalance(ctx, reports.Input{
		Scope:     scope,
		Currency:  a.Currency,
		FromDate:  period.StartDate,
		AsOfDate:  period.EndDate,
		SkipCache: true,
	})
	if err != nil {
		return periods.TrialBalanceSummary{}, err
	}
	return periods.TrialBalanceSummary{
		Balanced:    tb.IsBalanced,
		TotalDebits: tb.TotalDebits,
	}, nil
}

// InvoiceLedgerAdapter lets payments settle invoices without importing the
// AR service type.
type InvoiceLedgerAdapter struct {
	Service *ar.Service
}

func (a InvoiceLedgerAdapter) Outstanding(ctx context.Context, scope shared.Scope, id uuid.UUID) (decimal.Decimal, string, error) {
	inv, err := a.Service.Get(ctx, scope, id)
	if err != nil {
		return decimal.Zero, "", err
	}
	return inv.Outstanding(), inv.Number, nil
}

func (a InvoiceLedgerAdapter) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal) error {
	_, err := a.Service.ApplyAllocation(ctx, scope, id, amount)
	return err
}

// BillLedgerAdapter is the payables counterpart.
type BillLedgerAdapter struct {
	Service *ap.Service
}

func (a BillLedgerAdapter) Outstanding(ctx context.Context, scope shared.Scope, id uuid.UUID) (decimal.Decimal, string, error) {
	bill, err := a.Service.Get(ctx, scope, id)
	if err != nil {
		return decimal.Zero, "", err
	}
	return bill.Outstanding(), bill.Number, nil
}

func (a BillLedgerAdapter) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal) error {
	_, err := a.Service.ApplyAllocation(ctx, scope, id, amount)
	return err
}
