// Package ap manages supplier bills, the payable-side mirror of ar. A bill
// posts expense and input-tax debits against the accounts payable control.
package ap

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/money"
	"github.com/meridian-books/meridian/internal/shared"
	"github.com/meridian-books/meridian/internal/tax"
)

// Status enumerates the bill lifecycle. Persisted values, do not rename.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusValidated     Status = "validated"
	StatusPosted        Status = "posted"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusClosed        Status = "closed"
)

// Line is one bill line carrying an expense account.
type Line struct {
	ID          int64
	AccountID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string
	TaxRate     decimal.Decimal
	Amount      decimal.Decimal
	TaxAmount   decimal.Decimal
}

// Bill is a supplier bill header with its ordered lines.
type Bill struct {
	ID             uuid.UUID
	TenantID       int64
	CompanyID      int64
	Number         string
	SupplierID     int64
	Currency       string
	ExchangeRate   decimal.Decimal
	IssueDate      time.Time
	DueDate        time.Time
	Status         Status
	Subtotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	Total          decimal.Decimal
	Allocated      decimal.Decimal
	JournalID      *int64
	ReviewRequired bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Outstanding is the unpaid remainder of the bill total.
func (b Bill) Outstanding() decimal.Decimal {
	return b.Total.Sub(b.Allocated)
}

// DeriveTotals recomputes line amounts and header totals from the lines.
func (b *Bill) DeriveTotals() {
	subtotal, taxTotal := decimal.Zero, decimal.Zero
	for i := range b.Lines {
		line := &b.Lines[i]
		line.Amount = money.Round(b.Currency, line.Quantity.Mul(line.UnitPrice))
		line.TaxAmount = tax.CalculateLineTax(tax.Line{
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			TaxCode:   line.TaxCode,
			TaxRate:   line.TaxRate,
		}, b.Currency).Amount
		subtotal = subtotal.Add(line.Amount)
		taxTotal = taxTotal.Add(line.TaxAmount)
	}
	b.Subtotal = subtotal
	b.TaxTotal = taxTotal
	b.Total = subtotal.Add(taxTotal)
}

// GroupedTaxes returns one GL-ready tax amount per distinct tax code.
func (b Bill) GroupedTaxes() []tax.GroupedTax {
	lineTaxes := make([]tax.LineTax, 0, len(b.Lines))
	for _, line := range b.Lines {
		lineTaxes = append(lineTaxes, tax.LineTax{TaxCode: line.TaxCode, Amount: line.TaxAmount})
	}
	return tax.GroupTaxesByCode(lineTaxes)
}

// LineInput describes one bill line as supplied by the caller.
type LineInput struct {
	AccountID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxCode     string
	TaxRate     decimal.Decimal
}

// CreateInput creates a draft bill. DeclaredTotal, when present, must agree
// with the line-derived total within one minor unit.
type CreateInput struct {
	Scope         shared.Scope
	SupplierID    int64
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

// Validate checks structural requirements.
func (in CreateInput) Validate() error {
	if !in.Scope.Valid() {
		return shared.NewError(shared.CodeInvalidInput, "tenant and company scope required")
	}
	if in.SupplierID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "supplier required")
	}
	if in.Number == "" && in.CompanyCode == "" {
		return shared.NewError(shared.CodeInvalidInput, "company code required to allocate a bill number")
	}
	if in.Currency == "" {
		return shared.NewError(shared.CodeInvalidInput, "bill currency required")
	}
	if in.IssueDate.IsZero() {
		return shared.NewError(shared.CodeInvalidInput, "issue date required")
	}
	if len(in.Lines) == 0 {
		return shared.NewError(shared.CodeInvalidInput, "at least one bill line required")
	}
	for i, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Errorf(shared.CodeInvalidInput, "line %d missing expense account", i+1)
		}
		if !line.Quantity.IsPositive() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d quantity must be positive", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return shared.Errorf(shared.CodeInvalidInput, "line %d unit price cannot be negative", i+1)
		}
	}
	return nil
}

// PostInput posts a bill into the ledger.
type PostInput struct {
	Scope          shared.Scope
	BillID         uuid.UUID
	PeriodID       int64
	CompanyCode    string
	PostedBy       int64
	UserRole       shared.Role
	Override       bool
	IdempotencyKey string
}
