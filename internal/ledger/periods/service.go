package periods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// JournalGate answers how many journals in a period are not yet posted.
// Wired from the journal repository at composition time to keep this
// package free of a journal dependency.
type JournalGate interface {
	UnpostedCount(ctx context.Context, scope shared.Scope, periodID int64) (int64, error)
}

// TrialBalanceSummary carries the two facts the close checks need from
// the reporting engine.
type TrialBalanceSummary struct {
	Balanced    bool
	TotalDebits decimal.Decimal
}

// TrialBalancer produces a trial balance summary for a period.
type TrialBalancer interface {
	PeriodTrialBalance(ctx context.Context, scope shared.Scope, periodID int64) (TrialBalanceSummary, error)
}

// ReversalPort generates reversing entries into the following period and
// returns the journal numbers it created.
type ReversalPort interface {
	GenerateReversingEntries(ctx context.Context, scope shared.Scope, periodID int64, actorID int64) ([]string, error)
}

// AuditPort records lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort leaves the approval trail for close, force-close and reopen.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the period state machine and the close checklist.
type Service struct {
	repo      Repository
	journals  JournalGate
	tb        TrialBalancer
	reversals ReversalPort
	audit     AuditPort
	approvals ApprovalPort
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the period lifecycle service.
func NewService(repo Repository, journals JournalGate, tb TrialBalancer, audit AuditPort, approvals ApprovalPort, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		journals:  journals,
		tb:        tb,
		audit:     audit,
		approvals: approvals,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithReversals attaches a reversing-entry generator.
func (s *Service) WithReversals(port ReversalPort) *Service {
	s.reversals = port
	return s
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a new fiscal period after checking the window does not
// overlap an existing one.
func (s *Service) Create(ctx context.Context, in CreateInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	conflict, err := s.repo.RangeConflict(ctx, in.Scope, in.StartDate, in.EndDate)
	if err != nil {
		return Period{}, fmt.Errorf("check period overlap: %w", err)
	}
	if conflict {
		return Period{}, shared.Errorf(shared.CodeInvalidInput,
			"period %s overlaps an existing period", in.Code)
	}
	period, err := s.repo.Create(ctx, in)
	if err != nil {
		return Period{}, fmt.Errorf("create period: %w", err)
	}
	s.recordAudit(ctx, in.Scope, in.ActorID, "period.create", period.ID, map[string]any{
		"code": period.Code,
	})
	return period, nil
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Period, error) {
	return s.repo.Get(ctx, scope, id)
}

// List returns all periods for the scope.
func (s *Service) List(ctx context.Context, scope shared.Scope) ([]Period, error) {
	return s.repo.List(ctx, scope)
}

// Close runs the close-readiness checklist and, when every blocking check
// passes (or an authorized role forces past them), moves the period to
// closed. A failed checklist is not an error: the result carries the
// per-check outcome and the period stays open.
func (s *Service) Close(ctx context.Context, in CloseInput) (CloseResult, error) {
	if !in.Scope.Valid() {
		return CloseResult{}, shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.FiscalPeriodID == 0 || in.ClosedBy == 0 {
		return CloseResult{}, shared.NewError(shared.CodeInvalidInput, "fiscal period and closer required")
	}

	period, err := s.repo.Get(ctx, in.Scope, in.FiscalPeriodID)
	if err != nil {
		return CloseResult{}, err
	}
	if period.Status != StatusOpen {
		return CloseResult{}, shared.Errorf(shared.CodePeriodNotOpen,
			"period %s is %s", period.Code, period.Status)
	}

	result := CloseResult{Period: period}
	checks, totalDebits, err := s.runCloseChecks(ctx, in, period)
	if err != nil {
		return CloseResult{}, err
	}
	result.Checks = checks

	result.CanClose = checks.Blocking() &&
		(!checks.ApprovalRequired || in.UserRole.CanApproveClose())
	forced := false
	if !result.CanClose && in.ForceClose {
		if !in.UserRole.CanOverridePeriod() {
			return CloseResult{}, shared.Errorf(shared.CodeNotAuthorized,
				"role %s cannot force close a period", in.UserRole)
		}
		forced = true
		result.CanClose = true
		result.Warnings = append(result.Warnings, "close forced past failing checks")
	}
	if !result.CanClose {
		s.logger.Info("period close blocked",
			slog.String("period", period.Code),
			slog.Bool("journals_posted", checks.AllJournalsPosted),
			slog.Bool("trial_balance", checks.TrialBalanceBalanced),
			slog.Bool("bank_reconciled", checks.NoUnreconciledBankTransactions),
			slog.Bool("segregation", checks.SegregationOfDuties))
		return result, nil
	}

	closedAt := s.now()
	if err := s.repo.UpdateStatus(ctx, in.Scope, period.ID, StatusClosed, in.ClosedBy, closedAt); err != nil {
		return CloseResult{}, fmt.Errorf("close period: %w", err)
	}
	period.Status = StatusClosed
	period.ClosedBy = &in.ClosedBy
	period.ClosedAt = &closedAt
	result.Closed = true
	result.ClosedAt = closedAt

	if in.GenerateReversingEntries {
		if s.reversals == nil {
			result.Warnings = append(result.Warnings, "reversing entries requested but no generator configured")
		} else {
			numbers, err := s.reversals.GenerateReversingEntries(ctx, in.Scope, period.ID, in.ClosedBy)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("reversing entries failed: %v", err))
			} else {
				result.ReversingEntries = numbers
			}
		}
	}

	if s.policy.LockImmediately {
		if err := s.repo.UpdateStatus(ctx, in.Scope, period.ID, StatusLocked, in.ClosedBy, closedAt); err != nil {
			return CloseResult{}, fmt.Errorf("lock period: %w", err)
		}
		period.Status = StatusLocked
		period.LockedBy = &in.ClosedBy
		period.LockedAt = &closedAt
	}

	if s.policy.AutoOpenNext {
		if warning := s.openNext(ctx, in.Scope, period, in.ClosedBy); warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	action := shared.ApprovalApprove
	note := in.CloseReason
	if forced {
		note = "force close: " + note
	}
	s.recordApproval(ctx, "period_close", period.ID, in.ClosedBy, action, note)
	s.recordAudit(ctx, in.Scope, in.ClosedBy, "period.close", period.ID, map[string]any{
		"code":         period.Code,
		"forced":       forced,
		"total_debits": totalDebits,
	})

	result.Period = period
	return result, nil
}

// Reopen moves a closed period back to open. Only authorized roles may
// reopen, and a reason is mandatory so the approval trail explains why.
func (s *Service) Reopen(ctx context.Context, in ReopenInput) (Period, error) {
	if !in.Scope.Valid() {
		return Period{}, shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.OpenReason == "" {
		return Period{}, shared.NewError(shared.CodeInvalidInput, "reopen reason required")
	}
	if !in.UserRole.CanReopenPeriod() {
		return Period{}, shared.Errorf(shared.CodeNotAuthorized,
			"role %s cannot reopen a period", in.UserRole)
	}
	period, err := s.repo.Get(ctx, in.Scope, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if err := ValidateTransition(period.Status, StatusOpen); err != nil {
		return Period{}, err
	}
	if err := s.repo.UpdateStatus(ctx, in.Scope, period.ID, StatusOpen, in.ActorID, s.now()); err != nil {
		return Period{}, fmt.Errorf("reopen period: %w", err)
	}
	period.Status = StatusOpen
	period.ClosedBy = nil
	period.ClosedAt = nil
	s.recordApproval(ctx, "period_reopen", period.ID, in.ActorID, shared.ApprovalApprove, in.OpenReason)
	s.recordAudit(ctx, in.Scope, in.ActorID, "period.reopen", period.ID, map[string]any{
		"code":   period.Code,
		"reason": in.OpenReason,
	})
	return period, nil
}

// Lock makes a closed period terminal.
func (s *Service) Lock(ctx context.Context, scope shared.Scope, id int64, actorID int64, role shared.Role) (Period, error) {
	if !role.CanOverridePeriod() {
		return Period{}, shared.Errorf(shared.CodeNotAuthorized,
			"role %s cannot lock a period", role)
	}
	period, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return Period{}, err
	}
	if err := ValidateTransition(period.Status, StatusLocked); err != nil {
		return Period{}, err
	}
	lockedAt := s.now()
	if err := s.repo.UpdateStatus(ctx, scope, period.ID, StatusLocked, actorID, lockedAt); err != nil {
		return Period{}, fmt.Errorf("lock period: %w", err)
	}
	period.Status = StatusLocked
	period.LockedBy = &actorID
	period.LockedAt = &lockedAt
	s.recordAudit(ctx, scope, actorID, "period.lock", period.ID, map[string]any{
		"code": period.Code,
	})
	return period, nil
}

func (s *Service) runCloseChecks(ctx context.Context, in CloseInput, period Period) (CloseChecks, string, error) {
	checks := CloseChecks{AdjustmentsRecorded: in.AdjustmentsConfirmed}

	unposted, err := s.journals.UnpostedCount(ctx, in.Scope, period.ID)
	if err != nil {
		return checks, "", fmt.Errorf("count unposted journals: %w", err)
	}
	checks.AllJournalsPosted = unposted == 0

	summary, err := s.tb.PeriodTrialBalance(ctx, in.Scope, period.ID)
	if err != nil {
		return checks, "", fmt.Errorf("trial balance for close: %w", err)
	}
	checks.TrialBalanceBalanced = summary.Balanced

	bankOpen, err := s.repo.UnreconciledBankCount(ctx, in.Scope, period.ID)
	if err != nil {
		return checks, "", fmt.Errorf("count unreconciled bank transactions: %w", err)
	}
	checks.NoUnreconciledBankTransactions = bankOpen == 0

	checks.SegregationOfDuties = true
	if s.policy.RequireDualControl {
		posters, err := s.repo.DistinctPosters(ctx, in.Scope, period.ID)
		if err != nil {
			return checks, "", fmt.Errorf("list journal posters: %w", err)
		}
		if len(posters) == 1 && posters[0] == in.ClosedBy {
			checks.SegregationOfDuties = false
		}
	}

	checks.ApprovalRequired = s.policy.ApprovalThreshold.IsPositive() &&
		summary.TotalDebits.GreaterThan(s.policy.ApprovalThreshold)

	return checks, summary.TotalDebits.String(), nil
}

// openNext makes sure a period exists after the one just closed. When none
// exists a new window of the same length is opened.
func (s *Service) openNext(ctx context.Context, scope shared.Scope, closed Period, actorID int64) string {
	_, found, err := s.repo.NextAfter(ctx, scope, closed.EndDate)
	if err != nil {
		return fmt.Sprintf("look up next period: %v", err)
	}
	if found {
		return ""
	}
	start := closed.EndDate.AddDate(0, 0, 1)
	end := start.Add(closed.EndDate.Sub(closed.StartDate))
	next, err := s.repo.Create(ctx, CreateInput{
		Scope:     scope,
		Code:      start.Format("2006-01"),
		StartDate: start,
		EndDate:   end,
		ActorID:   actorID,
	})
	if err != nil {
		return fmt.Sprintf("auto-open next period: %v", err)
	}
	s.recordAudit(ctx, scope, actorID, "period.create", next.ID, map[string]any{
		"code": next.Code,
		"auto": true,
	})
	return ""
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID:  scope.TenantID,
		CompanyID: scope.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "period",
		EntityID:  fmt.Sprintf("%d", periodID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, module string, periodID int64, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	ref := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("period:%d", periodID)))
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  module,
		RefID:   ref,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Error("approval record failed", slog.String("module", module), slog.Any("error", err))
	}
}
