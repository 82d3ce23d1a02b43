package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/money"
	"github.com/meridian-books/meridian/internal/shared"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Reference   string
}

// PostingInput groups the fields required to create a journal.
type PostingInput struct {
	Scope        shared.Scope
	PeriodID     int64
	Date         time.Time
	Currency     string
	CompanyCode  string
	Number       string // caller-supplied; generated when empty
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	UserRole     shared.Role
	// Override lets an authorized role post into a closed (never locked)
	// period.
	Override       bool
	ReviewRequired bool
	IdempotencyKey string
	Lines          []LineInput
}

// Validate ensures posting input meets minimum criteria, including the
// double-entry invariant at the currency's minor-unit precision.
func (in PostingInput) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.PeriodID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "period required")
	}
	if in.Currency == "" {
		return shared.NewError(shared.CodeInvalidInput, "journal currency required")
	}
	if in.SourceModule == "" {
		return shared.NewError(shared.CodeInvalidInput, "source module required")
	}
	if in.SourceID == uuid.Nil {
		return shared.NewError(shared.CodeInvalidInput, "source id required")
	}
	if len(in.Lines) < 2 {
		return shared.NewError(shared.CodeInvalidInput, "journal requires at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Errorf(shared.CodeInvalidInput, "line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d has a negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d cannot be both debit and credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !money.Equal(in.Currency, debit, credit) {
		return shared.Errorf(shared.CodeUnbalancedJournal,
			"journal lines must balance: debits %s, credits %s", debit, credit).
			WithDetail("debits", debit.String()).
			WithDetail("credits", credit.String())
	}
	return nil
}

// ReverseInput wraps parameters for a reversing entry.
type ReverseInput struct {
	Scope       shared.Scope
	JournalID   int64
	ActorID     int64
	UserRole    shared.Role
	Memo        string
	TargetDate  *time.Time
	CompanyCode string
}
