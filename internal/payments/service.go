package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/journals"
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

// DocumentLedger is the slice of a subledger a payment needs: the
// outstanding balance of a document and the ability to apply an allocation.
// IN payments wire the AR ledger here, OUT payments the AP ledger.
type DocumentLedger interface {
	Outstanding(ctx context.Context, scope shared.Scope, id uuid.UUID) (decimal.Decimal, string, error)
	ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal) error
}

// AuditPort records payment actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Repository persists payments.
type Repository interface {
	Create(ctx context.Context, p Payment, companyCode string) (Payment, error)
	Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Payment, error)
	List(ctx context.Context, scope shared.Scope) ([]Payment, error)
	MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64) error
}

// ControlAccounts names the AR and AP controls payments settle against.
type ControlAccounts struct {
	Receivable int64
	Payable    int64
}

// Service owns the payment lifecycle.
type Service struct {
	repo       Repository
	poster     JournalPoster
	accountSrc AccountSource
	invoices   DocumentLedger
	bills      DocumentLedger
	audit      AuditPort
	ctrl       ControlAccounts
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the payments service.
func NewService(repo Repository, poster JournalPoster, accountSrc AccountSource, invoices, bills DocumentLedger, audit AuditPort, ctrl ControlAccounts, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		poster:     poster,
		accountSrc: accountSrc,
		invoices:   invoices,
		bills:      bills,
		audit:      audit,
		ctrl:       ctrl,
		logger:     logger,
		now:        time.Now,
	}
}

// Create stores a draft payment with its amount derived from the
// allocations. Each allocation is checked against the document's
// outstanding balance already at creation so an impossible draft is
// rejected early.
func (s *Service) Create(ctx context.Context, in CreateInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}

	ledger := s.ledgerFor(in.Type)
	p := Payment{
		ID:             uuid.New(),
		TenantID:       in.Scope.TenantID,
		CompanyID:      in.Scope.CompanyID,
		Number:         in.Number,
		Type:           in.Type,
		CounterpartyID: in.CounterpartyID,
		Currency:       in.Currency,
		Date:           in.Date,
		BankAccountID:  in.BankAccountID,
		Status:         StatusDraft,
		Method:         in.Method,
		Memo:           in.Memo,
	}
	for _, a := range in.Allocations {
		outstanding, number, err := ledger.Outstanding(ctx, in.Scope, a.DocumentID)
		if err != nil {
			return Payment{}, err
		}
		if a.Amount.GreaterThan(outstanding) {
			return Payment{}, shared.Errorf(shared.CodeAllocationExceeds,
				"allocation %s exceeds outstanding %s on %s",
				a.Amount.String(), outstanding.String(), number).
				WithDetail("outstanding", outstanding.String())
		}
		p.Allocations = append(p.Allocations, Allocation{DocumentID: a.DocumentID, Amount: a.Amount})
	}
	p.DeriveAmount()

	created, err := s.repo.Create(ctx, p, in.CompanyCode)
	if err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	s.recordAudit(ctx, in.Scope, in.ActorID, "payment.create", created.ID, map[string]any{
		"number": created.Number,
		"type":   string(created.Type),
		"amount": created.Amount.String(),
	})
	return created, nil
}

// Post writes the settlement journal and applies the allocations. The
// outstanding balance of every document is re-checked at posting time so a
// payment drafted against a since-settled invoice cannot overshoot.
func (s *Service) Post(ctx context.Context, in PostInput) (Payment, journals.PostingResult, error) {
	p, err := s.repo.Get(ctx, in.Scope, in.PaymentID)
	if err != nil {
		return Payment{}, journals.PostingResult{}, err
	}
	if p.Status != StatusDraft {
		return Payment{}, journals.PostingResult{}, shared.Errorf(shared.CodeInvalidStateTransition,
			"payment %s is %s and cannot be posted", p.Number, p.Status)
	}

	ledger := s.ledgerFor(p.Type)
	doc := posting.Document{
		Number:        p.Number,
		Currency:      p.Currency,
		BankAccountID: p.BankAccountID,
	}
	switch p.Type {
	case TypeIn:
		doc.Kind = posting.KindReceipt
		doc.ControlAccountID = s.ctrl.Receivable
	case TypeOut:
		doc.Kind = posting.KindDisbursement
		doc.ControlAccountID = s.ctrl.Payable
	}
	for _, a := range p.Allocations {
		outstanding, number, err := ledger.Outstanding(ctx, in.Scope, a.DocumentID)
		if err != nil {
			return Payment{}, journals.PostingResult{}, err
		}
		if a.Amount.GreaterThan(outstanding) {
			return Payment{}, journals.PostingResult{}, shared.Errorf(shared.CodeAllocationExceeds,
				"allocation %s exceeds outstanding %s on %s",
				a.Amount.String(), outstanding.String(), number)
		}
		doc.Distribution = append(doc.Distribution, posting.DistributionLine{
			AccountID:   doc.ControlAccountID,
			Amount:      a.Amount,
			Description: fmt.Sprintf("allocation %s", number),
		})
	}

	if err := s.checkAccounts(ctx, in.Scope, p); err != nil {
		return Payment{}, journals.PostingResult{}, err
	}

	lines, err := posting.BuildLines(doc)
	if err != nil {
		return Payment{}, journals.PostingResult{}, err
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey, err = shared.Fingerprint("payments", p.ID.String())
		if err != nil {
			return Payment{}, journals.PostingResult{}, err
		}
	}
	result, err := s.poster.Post(ctx, journals.PostingInput{
		Scope:          in.Scope,
		PeriodID:       in.PeriodID,
		Date:           p.Date,
		Currency:       p.Currency,
		CompanyCode:    in.CompanyCode,
		SourceModule:   "payments",
		SourceID:       p.ID,
		Memo:           fmt.Sprintf("payment %s", p.Number),
		PostedBy:       in.PostedBy,
		UserRole:       in.UserRole,
		Override:       in.Override,
		IdempotencyKey: idemKey,
		Lines:          lines,
	})
	if err != nil {
		return Payment{}, journals.PostingResult{}, err
	}

	// A replayed posting already applied its allocations on the first
	// attempt; running the loop again would double-reduce the documents'
	// outstanding balances.
	if !result.Replayed {
		for _, a := range p.Allocations {
			if err := ledger.ApplyAllocation(ctx, in.Scope, a.DocumentID, a.Amount); err != nil {
				return Payment{}, journals.PostingResult{}, fmt.Errorf("apply allocation: %w", err)
			}
		}
	}
	if err := s.repo.MarkPosted(ctx, in.Scope, p.ID, result.Journal.ID); err != nil {
		return Payment{}, journals.PostingResult{}, fmt.Errorf("mark payment posted: %w", err)
	}
	p.Status = StatusPosted
	p.JournalID = &result.Journal.ID

	s.recordAudit(ctx, in.Scope, in.PostedBy, "payment.post", p.ID, map[string]any{
		"number":  p.Number,
		"journal": result.Journal.Number,
	})
	return p, result, nil
}

// Get returns one payment.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Payment, error) {
	return s.repo.Get(ctx, scope, id)
}

// List returns all payments in scope.
func (s *Service) List(ctx context.Context, scope shared.Scope) ([]Payment, error) {
	return s.repo.List(ctx, scope)
}

func (s *Service) ledgerFor(t Type) DocumentLedger {
	if t == TypeOut {
		return s.bills
	}
	return s.invoices
}

// checkAccounts verifies the bank account is a cash asset and the control
// matches the payment direction.
func (s *Service) checkAccounts(ctx context.Context, scope shared.Scope, p Payment) error {
	coa, err := s.accountSrc.MapByScope(ctx, scope)
	if err != nil {
		return err
	}
	v := accounts.NewValidator()
	if err := v.RequireType(p.BankAccountID, accounts.TypeAsset, coa); err != nil {
		return err
	}
	bank, ok := coa[p.BankAccountID]
	if !ok || !bank.IsCash {
		return shared.Errorf(shared.CodeInvalidInput,
			"account %d is not a bank or cash account", p.BankAccountID)
	}
	switch p.Type {
	case TypeIn:
		return v.RequireType(s.ctrl.Receivable, accounts.TypeAsset, coa)
	case TypeOut:
		return v.RequireType(s.ctrl.Payable, accounts.TypeLiability, coa)
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
		Entity:    "payment",
		EntityID:  id.String(),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
