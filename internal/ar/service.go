package ar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/money"
	"github.com/meridian-books/meridian/internal/posting"
	"github.com/meridian-books/meridian/internal/shared"
)

// JournalPoster pushes a candidate journal through the posting engine.
type JournalPoster interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.PostingResult, error)
}

// AccountSource supplies the chart of accounts for a scope.
type AccountSource interface {
	MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error)
}

// FxAdvisor reports whether a posting in the given currency must be tagged
// for review because the applicable exchange rate is stale.
type FxAdvisor interface {
	ReviewRequired(ctx context.Context, scope shared.Scope, currency string, date time.Time) (bool, error)
}

// AuditPort records invoice actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Repository persists invoices.
type Repository interface {
	Create(ctx context.Context, inv Invoice, companyCode string) (Invoice, error)
	Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Invoice, error)
	List(ctx context.Context, scope shared.Scope) ([]Invoice, error)
	ListOutstanding(ctx context.Context, scope shared.Scope) ([]Invoice, error)
	MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error
	UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error
	ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error
}

// ControlAccounts names the GL accounts the AR subledger posts against.
type ControlAccounts struct {
	Receivable int64
	TaxPayable int64
}

// Service owns the invoice lifecycle.
type Service struct {
	repo         Repository
	poster       JournalPoster
	accountSrc   AccountSource
	fx           FxAdvisor
	audit        AuditPort
	ctrl         ControlAccounts
	baseCurrency string
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs the AR service.
func NewService(repo Repository, poster JournalPoster, accountSrc AccountSource, audit AuditPort, ctrl ControlAccounts, baseCurrency string, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		poster:       poster,
		accountSrc:   accountSrc,
		audit:        audit,
		ctrl:         ctrl,
		baseCurrency: baseCurrency,
		logger:       logger,
		now:          time.Now,
	}
}

// WithFxAdvisor attaches the staleness advisor for foreign-currency
// invoices.
func (s *Service) WithFxAdvisor(fx FxAdvisor) *Service {
	s.fx = fx
	return s
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create derives totals from the lines and stores a draft invoice. When the
// caller declared a header total, it must agree with the derived total
// within one minor unit of the invoice currency.
func (s *Service) Create(ctx context.Context, in CreateInput) (Invoice, error) {
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		ID:           uuid.New(),
		TenantID:     in.Scope.TenantID,
		CompanyID:    in.Scope.CompanyID,
		Number:       in.Number,
		CustomerID:   in.CustomerID,
		Currency:     in.Currency,
		ExchangeRate: in.ExchangeRate,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		Status:       StatusDraft,
		Allocated:    decimal.Zero,
	}
	for _, l := range in.Lines {
		inv.Lines = append(inv.Lines, Line{
			AccountID:   l.AccountID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxCode:     l.TaxCode,
			TaxRate:     l.TaxRate,
		})
	}
	inv.DeriveTotals()

	if in.DeclaredTotal != nil && !money.WithinTolerance(inv.Currency, *in.DeclaredTotal, inv.Total) {
		return Invoice{}, shared.Errorf(shared.CodeLineTotalMismatch,
			"declared total %s disagrees with line-derived total %s",
			in.DeclaredTotal.String(), inv.Total.String()).
			WithDetail("declared", in.DeclaredTotal.String()).
			WithDetail("derived", inv.Total.String())
	}

	created, err := s.repo.Create(ctx, inv, in.CompanyCode)
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	s.recordAudit(ctx, in.Scope, in.ActorID, "invoice.create", created.ID, map[string]any{
		"number": created.Number,
		"total":  created.Total.String(),
	})
	return created, nil
}

// Validate moves a draft invoice to validated after re-deriving totals and
// checking every referenced account against the chart.
func (s *Service) Validate(ctx context.Context, scope shared.Scope, id uuid.UUID, actorID int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusDraft {
		return Invoice{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"invoice %s is %s, only draft invoices can be validated", inv.Number, inv.Status)
	}
	if err := s.checkAccounts(ctx, scope, inv); err != nil {
		return Invoice{}, err
	}
	if err := s.repo.UpdateStatus(ctx, scope, id, StatusValidated); err != nil {
		return Invoice{}, fmt.Errorf("validate invoice: %w", err)
	}
	inv.Status = StatusValidated
	s.recordAudit(ctx, scope, actorID, "invoice.validate", id, nil)
	return inv, nil
}

// Post turns the invoice into exactly one balanced journal. Every check
// runs before the first write; a failed posting leaves the invoice and the
// ledger untouched.
func (s *Service) Post(ctx context.Context, in PostInput) (Invoice, journals.PostingResult, error) {
	inv, err := s.repo.Get(ctx, in.Scope, in.InvoiceID)
	if err != nil {
		return Invoice{}, journals.PostingResult{}, err
	}
	if inv.Status != StatusDraft && inv.Status != StatusValidated {
		return Invoice{}, journals.PostingResult{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"invoice %s is %s and cannot be posted", inv.Number, inv.Status)
	}

	// totals are always re-derived from lines; a stored header that
	// drifted past one minor unit means the record was tampered with
	derived := inv
	derived.DeriveTotals()
	if !money.WithinTolerance(inv.Currency, inv.Total, derived.Total) {
		return Invoice{}, journals.PostingResult{}, shared.Errorf(shared.CodeLineTotalMismatch,
			"stored total %s disagrees with line-derived total %s",
			inv.Total.String(), derived.Total.String())
	}
	inv = derived

	receivable := inv.Subtotal.Add(inv.TaxTotal)
	if !money.Equal(inv.Currency, receivable, inv.Total) {
		return Invoice{}, journals.PostingResult{}, shared.Errorf(shared.CodeUnbalancedJournal,
			"receivable %s does not equal revenue plus tax %s", inv.Total.String(), receivable.String())
	}

	if err := s.checkAccounts(ctx, in.Scope, inv); err != nil {
		return Invoice{}, journals.PostingResult{}, err
	}

	review := false
	if s.fx != nil && inv.Currency != s.baseCurrency {
		review, err = s.fx.ReviewRequired(ctx, in.Scope, inv.Currency, inv.IssueDate)
		if err != nil {
			return Invoice{}, journals.PostingResult{}, fmt.Errorf("fx staleness check: %w", err)
		}
		if review {
			s.logger.Warn("posting with stale exchange rate",
				slog.String("invoice", inv.Number),
				slog.String("currency", inv.Currency))
		}
	}

	doc := posting.Document{
		Kind:             posting.KindInvoice,
		Number:           inv.Number,
		Currency:         inv.Currency,
		ControlAccountID: s.ctrl.Receivable,
		TaxAccountID:     s.ctrl.TaxPayable,
		Taxes:            inv.GroupedTaxes(),
	}
	for _, line := range inv.Lines {
		doc.Distribution = append(doc.Distribution, posting.DistributionLine{
			AccountID:   line.AccountID,
			Amount:      line.Amount,
			Description: line.Description,
		})
	}
	lines, err := posting.BuildLines(doc)
	if err != nil {
		return Invoice{}, journals.PostingResult{}, err
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey, err = shared.Fingerprint("ar", inv.ID.String())
		if err != nil {
			return Invoice{}, journals.PostingResult{}, err
		}
	}
	result, err := s.poster.Post(ctx, journals.PostingInput{
		Scope:          in.Scope,
		PeriodID:       in.PeriodID,
		Date:           inv.IssueDate,
		Currency:       inv.Currency,
		CompanyCode:    in.CompanyCode,
		SourceModule:   "ar",
		SourceID:       inv.ID,
		Memo:           fmt.Sprintf("invoice %s", inv.Number),
		PostedBy:       in.PostedBy,
		UserRole:       in.UserRole,
		Override:       in.Override,
		ReviewRequired: review,
		IdempotencyKey: idemKey,
		Lines:          lines,
	})
	if err != nil {
		return Invoice{}, journals.PostingResult{}, err
	}

	if err := s.repo.MarkPosted(ctx, in.Scope, inv.ID, result.Journal.ID, review); err != nil {
		return Invoice{}, journals.PostingResult{}, fmt.Errorf("mark invoice posted: %w", err)
	}
	inv.Status = StatusPosted
	inv.JournalID = &result.Journal.ID
	inv.ReviewRequired = review

	s.recordAudit(ctx, in.Scope, in.PostedBy, "invoice.post", inv.ID, map[string]any{
		"number":  inv.Number,
		"journal": result.Journal.Number,
		"review":  review,
	})
	return inv, result, nil
}

// ApplyAllocation records a payment allocation against a posted invoice.
// The allocation may never exceed the outstanding balance.
func (s *Service) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal) (Invoice, error) {
	if !amount.IsPositive() {
		return Invoice{}, shared.NewError(shared.CodeInvalidInput, "allocation must be positive")
	}
	inv, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusPosted && inv.Status != StatusPartiallyPaid {
		return Invoice{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"invoice %s is %s and cannot take allocations", inv.Number, inv.Status)
	}
	outstanding := inv.Outstanding()
	if amount.GreaterThan(outstanding) {
		return Invoice{}, shared.Errorf(shared.CodeAllocationExceeds,
			"allocation %s exceeds outstanding %s on invoice %s",
			amount.String(), outstanding.String(), inv.Number).
			WithDetail("outstanding", outstanding.String())
	}

	inv.Allocated = inv.Allocated.Add(amount)
	status := StatusPartiallyPaid
	if money.Equal(inv.Currency, inv.Allocated, inv.Total) {
		status = StatusPaid
	}
	if err := s.repo.ApplyAllocation(ctx, scope, id, amount, status); err != nil {
		return Invoice{}, fmt.Errorf("apply allocation: %w", err)
	}
	inv.Status = status
	return inv, nil
}

// Close retires a fully paid invoice.
func (s *Service) Close(ctx context.Context, scope shared.Scope, id uuid.UUID, actorID int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusPaid {
		return Invoice{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"invoice %s is %s, only paid invoices close", inv.Number, inv.Status)
	}
	if err := s.repo.UpdateStatus(ctx, scope, id, StatusClosed); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusClosed
	s.recordAudit(ctx, scope, actorID, "invoice.close", id, nil)
	return inv, nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Invoice, error) {
	return s.repo.Get(ctx, scope, id)
}

// List returns all invoices in scope.
func (s *Service) List(ctx context.Context, scope shared.Scope) ([]Invoice, error) {
	return s.repo.List(ctx, scope)
}

// Aging buckets outstanding invoices by days overdue as of the given date.
func (s *Service) Aging(ctx context.Context, scope shared.Scope, asOf time.Time) (AgingBuckets, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	invoices, err := s.repo.ListOutstanding(ctx, scope)
	if err != nil {
		return AgingBuckets{}, err
	}
	buckets := AgingBuckets{
		AsOf:    asOf,
		Current: decimal.Zero, Days30: decimal.Zero, Days60: decimal.Zero,
		Days90: decimal.Zero, Days120: decimal.Zero, Total: decimal.Zero,
	}
	for _, inv := range invoices {
		outstanding := inv.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		buckets.InvoiceCt++
		buckets.Total = buckets.Total.Add(outstanding)
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			buckets.Current = buckets.Current.Add(outstanding)
		case days <= 30:
			buckets.Days30 = buckets.Days30.Add(outstanding)
		case days <= 60:
			buckets.Days60 = buckets.Days60.Add(outstanding)
		case days <= 90:
			buckets.Days90 = buckets.Days90.Add(outstanding)
		default:
			buckets.Days120 = buckets.Days120.Add(outstanding)
		}
	}
	return buckets, nil
}

// checkAccounts enforces the account type rules for an invoice: the
// receivable control is an asset, every line account is revenue, and the
// tax account is a liability when taxes are present.
func (s *Service) checkAccounts(ctx context.Context, scope shared.Scope, inv Invoice) error {
	coa, err := s.accountSrc.MapByScope(ctx, scope)
	if err != nil {
		return err
	}
	v := accounts.NewValidator()
	if err := v.RequireType(s.ctrl.Receivable, accounts.TypeAsset, coa); err != nil {
		return err
	}
	for _, line := range inv.Lines {
		if err := v.RequireType(line.AccountID, accounts.TypeRevenue, coa); err != nil {
			return err
		}
	}
	if !inv.TaxTotal.IsZero() {
		if err := v.RequireType(s.ctrl.TaxPayable, accounts.TypeLiability, coa); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID:  scope.TenantID,
		CompanyID: scope.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "invoice",
		EntityID:  id.String(),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
