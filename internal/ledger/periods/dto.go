package periods

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// CreateInput captures validation rules for new periods.
type CreateInput struct {
	Scope     shared.Scope
	Code      string
	StartDate time.Time
	EndDate   time.Time
	ActorID   int64
}

// Validate ensures the create period input is coherent.
func (in CreateInput) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return shared.NewError(shared.CodeInvalidInput, "period code required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.NewError(shared.CodeInvalidInput, "start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return shared.NewError(shared.CodeInvalidInput, "start date cannot be after end date")
	}
	return nil
}

// CloseInput bundles a close request.
type CloseInput struct {
	Scope                    shared.Scope
	FiscalPeriodID           int64
	CloseDate                time.Time
	ClosedBy                 int64
	UserRole                 shared.Role
	CloseReason              string
	// AdjustmentsConfirmed is the closer's attestation that all period
	// adjustments have been recorded.
	AdjustmentsConfirmed     bool
	ForceClose               bool
	GenerateReversingEntries bool
}

// ReopenInput bundles a reopen request; OpenReason is mandatory.
type ReopenInput struct {
	Scope      shared.Scope
	PeriodID   int64
	ActorID    int64
	UserRole   shared.Role
	OpenReason string
}

// CloseChecks reports the close-readiness booleans. Blocking checks gate
// the close; warnings are surfaced but never block.
type CloseChecks struct {
	AllJournalsPosted              bool
	TrialBalanceBalanced           bool
	NoUnreconciledBankTransactions bool
	AdjustmentsRecorded            bool
	SegregationOfDuties            bool
	ApprovalRequired               bool
}

// Blocking reports whether every blocking check passes. ApprovalRequired is
// handled separately: it blocks only when the closer's role cannot satisfy
// the approval policy.
func (c CloseChecks) Blocking() bool {
	return c.AllJournalsPosted &&
		c.TrialBalanceBalanced &&
		c.NoUnreconciledBankTransactions &&
		c.AdjustmentsRecorded &&
		c.SegregationOfDuties
}

// CloseResult is the outcome of a close request.
type CloseResult struct {
	Period           Period
	Checks           CloseChecks
	CanClose         bool
	Closed           bool
	Warnings         []string
	ReversingEntries []string
	ClosedAt         time.Time
}

// Policy tunes the close behaviour; injected from config, never global.
type Policy struct {
	// ApprovalThreshold is the period debit volume above which a close
	// needs an approving role.
	ApprovalThreshold decimal.Decimal
	// RequireDualControl rejects a close when the closer is the sole
	// preparer of the period's journals.
	RequireDualControl bool
	// LockImmediately moves the period straight to locked after closing.
	LockImmediately bool
	// AutoOpenNext opens the following period after a successful close.
	AutoOpenNext bool
}
