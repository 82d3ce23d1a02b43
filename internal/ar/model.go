// Package ar manages customer invoices and their journey into the general
// ledger. Invoice totals are derived from lines on every read path; the
// stored totals are a cache of that derivation, never the source of truth.
package ar

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/money"
	"github.com/meridian-books/meridian/internal/tax"
)

// Status enumerates the invoice lifecycle. The string values are persisted
// and must not be renamed.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusValidated     Status = "validated"
	StatusPosted        Status = "posted"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusClosed        Status = "closed"
)

// Line is one invoice line. Amount and TaxAmount are derived from quantity,
// unit price and tax rate at the invoice currency's precision.
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

// Invoice is a customer invoice header with its ordered lines.
type Invoice struct {
	ID           uuid.UUID
	TenantID     int64
	CompanyID    int64
	Number       string
	CustomerID   int64
	Currency     string
	ExchangeRate decimal.Decimal
	IssueDate    time.Time
	DueDate      time.Time
	Status       Status
	Subtotal     decimal.Decimal
	TaxTotal     decimal.Decimal
	Total        decimal.Decimal
	// Allocated is the sum of payment allocations applied so far.
	Allocated decimal.Decimal
	JournalID *int64
	// ReviewRequired marks postings that used a stale exchange rate.
	ReviewRequired bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Outstanding is the unpaid remainder of the invoice total.
func (inv Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.Allocated)
}

// DeriveTotals recomputes per-line amounts and the header totals from the
// lines.
func (inv *Invoice) DeriveTotals() {
	subtotal, taxTotal := decimal.Zero, decimal.Zero
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.Amount = money.Round(inv.Currency, line.Quantity.Mul(line.UnitPrice))
		line.TaxAmount = tax.CalculateLineTax(tax.Line{
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			TaxCode:   line.TaxCode,
			TaxRate:   line.TaxRate,
		}, inv.Currency).Amount
		subtotal = subtotal.Add(line.Amount)
		taxTotal = taxTotal.Add(line.TaxAmount)
	}
	inv.Subtotal = subtotal
	inv.TaxTotal = taxTotal
	inv.Total = subtotal.Add(taxTotal)
}

// GroupedTaxes returns one GL-ready tax amount per distinct tax code.
func (inv Invoice) GroupedTaxes() []tax.GroupedTax {
	lineTaxes := make([]tax.LineTax, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lineTaxes = append(lineTaxes, tax.LineTax{TaxCode: line.TaxCode, Amount: line.TaxAmount})
	}
	return tax.GroupTaxesByCode(lineTaxes)
}

// AgingBuckets summarises outstanding balances by days overdue.
type AgingBuckets struct {
	Current   decimal.Decimal
	Days30    decimal.Decimal
	Days60    decimal.Decimal
	Days90    decimal.Decimal
	Days120   decimal.Decimal
	Total     decimal.Decimal
	AsOf      time.Time
	InvoiceCt int
}
