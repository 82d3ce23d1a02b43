package ap

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

// FxAdvisor reports whether the applicable exchange rate is stale.
type FxAdvisor interface {
	ReviewRequired(ctx context.Context, scope shared.Scope, currency string, date time.Time) (bool, error)
}

// AuditPort records bill actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Repository persists bills.
type Repository interface {
	Create(ctx context.Context, bill Bill, companyCode string) (Bill, error)
	Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Bill, error)
	List(ctx context.Context, scope shared.Scope) ([]Bill, error)
	ListOutstanding(ctx context.Context, scope shared.Scope) ([]Bill, error)
	MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error
	UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error
	ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error
}

// ControlAccounts names the GL accounts the AP subledger posts against.
type ControlAccounts struct {
	Payable  int64
	InputTax int64
}

// Service owns the bill lifecycle.
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

// NewService constructs the AP service.
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

// WithFxAdvisor attaches the staleness advisor.
func (s *Service) WithFxAdvisor(fx FxAdvisor) *Service {
	s.fx = fx
	return s
}

// Create derives totals from the lines and stores a draft bill.
func (s *Service) Create(ctx context.Context, in CreateInput) (Bill, error) {
	if err := in.Validate(); err != nil {
		return Bill{}, err
	}

	bill := Bill{
		ID:           uuid.New(),
		TenantID:     in.Scope.TenantID,
		CompanyID:    in.Scope.CompanyID,
		Number:       in.Number,
		SupplierID:   in.SupplierID,
		Currency:     in.Currency,
		ExchangeRate: in.ExchangeRate,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		Status:       StatusDraft,
		Allocated:    decimal.Zero,
	}
	for _, l := range in.Lines {
		bill.Lines = append(bill.Lines, Line{
			AccountID:   l.AccountID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxCode:     l.TaxCode,
			TaxRate:     l.TaxRate,
		})
	}
	bill.DeriveTotals()

	if in.DeclaredTotal != nil && !money.WithinTolerance(bill.Currency, *in.DeclaredTotal, bill.Total) {
		return Bill{}, shared.Errorf(shared.CodeLineTotalMismatch,
			"declared total %s disagrees with line-derived total %s",
			in.DeclaredTotal.String(), bill.Total.String())
	}

	created, err := s.repo.Create(ctx, bill, in.CompanyCode)
	if err != nil {
		return Bill{}, fmt.Errorf("create bill: %w", err)
	}
	s.recordAudit(ctx, in.Scope, in.ActorID, "bill.create", created.ID, map[string]any{
		"number": created.Number,
		"total":  created.Total.String(),
	})
	return created, nil
}

// Post turns the bill into exactly one balanced journal: expense and tax
// debits against a single payable credit.
func (s *Service) Post(ctx context.Context, in PostInput) (Bill, journals.PostingResult, error) {
	bill, err := s.repo.Get(ctx, in.Scope, in.BillID)
	if err != nil {
		return Bill{}, journals.PostingResult{}, err
	}
	if bill.Status != StatusDraft && bill.Status != StatusValidated {
		return Bill{}, journals.PostingResult{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"bill %s is %s and cannot be posted", bill.Number, bill.Status)
	}

	derived := bill
	derived.DeriveTotals()
	if !money.WithinTolerance(bill.Currency, bill.Total, derived.Total) {
		return Bill{}, journals.PostingResult{}, shared.Errorf(shared.CodeLineTotalMismatch,
			"stored total %s disagrees with line-derived total %s",
			bill.Total.String(), derived.Total.String())
	}
	bill = derived

	if err := s.checkAccounts(ctx, in.Scope, bill); err != nil {
		return Bill{}, journals.PostingResult{}, err
	}

	review := false
	if s.fx != nil && bill.Currency != s.baseCurrency {
		review, err = s.fx.ReviewRequired(ctx, in.Scope, bill.Currency, bill.IssueDate)
		if err != nil {
			return Bill{}, journals.PostingResult{}, fmt.Errorf("fx staleness check: %w", err)
		}
	}

	doc := posting.Document{
		Kind:             posting.KindBill,
		Number:           bill.Number,
		Currency:         bill.Currency,
		ControlAccountID: s.ctrl.Payable,
		TaxAccountID:     s.ctrl.InputTax,
		Taxes:            bill.GroupedTaxes(),
	}
	for _, line := range bill.Lines {
		doc.Distribution = append(doc.Distribution, posting.DistributionLine{
			AccountID:   line.AccountID,
			Amount:      line.Amount,
			Description: line.Description,
		})
	}
	lines, err := posting.BuildLines(doc)
	if err != nil {
		return Bill{}, journals.PostingResult{}, err
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey, err = shared.Fingerprint("ap", bill.ID.String())
		if err != nil {
			return Bill{}, journals.PostingResult{}, err
		}
	}
	result, err := s.poster.Post(ctx, journals.PostingInput{
		Scope:          in.Scope,
		PeriodID:       in.PeriodID,
		Date:           bill.IssueDate,
		Currency:       bill.Currency,
		CompanyCode:    in.CompanyCode,
		SourceModule:   "ap",
		SourceID:       bill.ID,
		Memo:           fmt.Sprintf("bill %s", bill.Number),
		PostedBy:       in.PostedBy,
		UserRole:       in.UserRole,
		Override:       in.Override,
		ReviewRequired: review,
		IdempotencyKey: idemKey,
		Lines:          lines,
	})
	if err != nil {
		return Bill{}, journals.PostingResult{}, err
	}

	if err := s.repo.MarkPosted(ctx, in.Scope, bill.ID, result.Journal.ID, review); err != nil {
		return Bill{}, journals.PostingResult{}, fmt.Errorf("mark bill posted: %w", err)
	}
	bill.Status = StatusPosted
	bill.JournalID = &result.Journal.ID
	bill.ReviewRequired = review

	s.recordAudit(ctx, in.Scope, in.PostedBy, "bill.post", bill.ID, map[string]any{
		"number":  bill.Number,
		"journal": result.Journal.Number,
	})
	return bill, result, nil
}

// ApplyAllocation records a payment allocation against a posted bill.
func (s *Service) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal) (Bill, error) {
	if !amount.IsPositive() {
		return Bill{}, shared.NewError(shared.CodeInvalidInput, "allocation must be positive")
	}
	bill, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return Bill{}, err
	}
	if bill.Status != StatusPosted && bill.Status != StatusPartiallyPaid {
		return Bill{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"bill %s is %s and cannot take allocations", bill.Number, bill.Status)
	}
	outstanding := bill.Outstanding()
	if amount.GreaterThan(outstanding) {
		return Bill{}, shared.Errorf(shared.CodeAllocationExceeds,
			"allocation %s exceeds outstanding %s on bill %s",
			amount.String(), outstanding.String(), bill.Number)
	}

	bill.Allocated = bill.Allocated.Add(amount)
	status := StatusPartiallyPaid
	if money.Equal(bill.Currency, bill.Allocated, bill.Total) {
		status = StatusPaid
	}
	if err := s.repo.ApplyAllocation(ctx, scope, id, amount, status); err != nil {
		return Bill{}, fmt.Errorf("apply allocation: %w", err)
	}
	bill.Status = status
	return bill, nil
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Bill, error) {
	return s.repo.Get(ctx, scope, id)
}

// List returns all bills in scope.
func (s *Service) List(ctx context.Context, scope shared.Scope) ([]Bill, error) {
	return s.repo.List(ctx, scope)
}

// checkAccounts enforces the payable-side account rules: the payable
// control is a liability, line accounts are expenses, and the input tax
// account is an asset when taxes are present.
func (s *Service) checkAccounts(ctx context.Context, scope shared.Scope, bill Bill) error {
	coa, err := s.accountSrc.MapByScope(ctx, scope)
	if err != nil {
		return err
	}
	v := accounts.NewValidator()
	if err := v.RequireType(s.ctrl.Payable, accounts.TypeLiability, coa); err != nil {
		return err
	}
	for _, line := range bill.Lines {
		if err := v.RequireType(line.AccountID, accounts.TypeExpense, coa); err != nil {
			return err
		}
	}
	if !bill.TaxTotal.IsZero() {
		if err := v.RequireType(s.ctrl.InputTax, accounts.TypeAsset, coa); err != nil {
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
		Entity:    "bill",
		EntityID:  id.String(),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
