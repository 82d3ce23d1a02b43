// Package payments settles invoices and bills against bank accounts. A
// payment carries one or more allocations; posting produces a single
// journal per payment regardless of how many documents it settles.
package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// Type is the payment direction. The values are persisted and contractual:
// OUT settles supplier bills, IN receipts customer invoices.
type Type string

const (
	TypeOut Type = "OUT"
	TypeIn  Type = "IN"
)

// Status enumerates the payment lifecycle.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
)

// Allocation links part of the payment amount to one invoice or bill.
type Allocation struct {
	ID         int64
	DocumentID uuid.UUID
	Amount     decimal.Decimal
}

// Payment is a bank settlement header with its allocations. Amount is
// derived from the allocations, never stored independently of them.
type Payment struct {
	ID             uuid.UUID
	TenantID       int64
	CompanyID      int64
	Number         string
	Type           Type
	CounterpartyID int64
	Currency       string
	Date           time.Time
	BankAccountID  int64
	Amount         decimal.Decimal
	Status         Status
	Method         string
	Memo           string
	JournalID      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Allocations    []Allocation
}

// DeriveAmount recomputes the payment amount from its allocations.
func (p *Payment) DeriveAmount() {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	p.Amount = total
}

// AllocationInput is one caller-supplied allocation.
type AllocationInput struct {
	DocumentID uuid.UUID
	Amount     decimal.Decimal
}

// CreateInput creates a draft payment.
type CreateInput struct {
	Scope          shared.Scope
	Type           Type
	CounterpartyID int64
	CompanyCode    string
	Number         string
	Currency       string
	Date           time.Time
	BankAccountID  int64
	Method         string
	Memo           string
	Allocations    []AllocationInput
	ActorID        int64
}

// Validate checks structural requirements.
func (in CreateInput) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.Type != TypeOut && in.Type != TypeIn {
		return shared.Errorf(shared.CodeInvalidInput, "payment type must be OUT or IN, got %q", in.Type)
	}
	if in.Number == "" && in.CompanyCode == "" {
		return shared.NewError(shared.CodeInvalidInput, "company code required to allocate a payment number")
	}
	if in.Currency == "" {
		return shared.NewError(shared.CodeInvalidInput, "payment currency required")
	}
	if in.Date.IsZero() {
		return shared.NewError(shared.CodeInvalidInput, "payment date required")
	}
	if in.BankAccountID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "bank account required")
	}
	if len(in.Allocations) == 0 {
		return shared.NewError(shared.CodeInvalidInput, "at least one allocation required")
	}
	for i, a := range in.Allocations {
		if a.DocumentID == uuid.Nil {
			return shared.Errorf(shared.CodeInvalidInput, "allocation %d missing document", i+1)
		}
		if !a.Amount.IsPositive() {
			return shared.Errorf(shared.CodeInvalidInput, "allocation %d must be positive", i+1)
		}
	}
	return nil
}

// PostInput posts a draft payment.
type PostInput struct {
	Scope          shared.Scope
	PaymentID      uuid.UUID
	PeriodID       int64
	CompanyCode    string
	PostedBy       int64
	UserRole       shared.Role
	Override       bool
	IdempotencyKey string
}
