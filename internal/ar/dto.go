package ar

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// LineInput describes one invoice line as supplied by the caller.
type LineInput struct {
	AccountID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string
	TaxRate     decimal.Decimal
}

// CreateInput creates a draft invoice. DeclaredTotal is optional: when the
// caller supplies a header total it is cross-checked against the
// line-derived total within one minor unit.
type CreateInput struct {
	Scope         shared.Scope
	CustomerID    int64
	CompanyCode   string
	Number        string
	Currency      string
	ExchangeRate  decimal.Decimal
	IssueDate     time.Time
	DueDate       time.Time
	DeclaredTotal *decimal.Decimal
	Lines         []LineInput
	ActorID       int64
}

// Validate checks structural requirements before any derivation runs.
func (in CreateInput) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.CustomerID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "customer required")
	}
	if in.Currency == "" {
		return shared.NewError(shared.CodeInvalidInput, "invoice currency required")
	}
	if in.Number == "" && in.CompanyCode == "" {
		return shared.NewError(shared.CodeInvalidInput, "company code required to allocate an invoice number")
	}
	if in.IssueDate.IsZero() {
		return shared.NewError(shared.CodeInvalidInput, "issue date required")
	}
	if len(in.Lines) == 0 {
		return shared.NewError(shared.CodeInvalidInput, "at least one invoice line required")
	}
	for i, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Errorf(shared.CodeInvalidInput, "line %d missing revenue account", i+1)
		}
		if !line.Quantity.IsPositive() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d quantity must be positive", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d unit price cannot be negative", i+1)
		}
		if line.TaxRate.IsNegative() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d tax rate cannot be negative", i+1)
		}
	}
	return nil
}

// PostInput posts a validated invoice into the ledger.
type PostInput struct {
	Scope          shared.Scope
	InvoiceID      uuid.UUID
	PeriodID       int64
	CompanyCode    string
	PostedBy       int64
	UserRole       shared.Role
	Override       bool
	IdempotencyKey string
}
