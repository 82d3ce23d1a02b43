// Package posting turns AR/AP/payment documents into balanced journal
// lines. Every subledger goes through the same builder so the debit and
// credit orientation per document kind lives in exactly one place.
package posting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/shared"
	"github.com/meridian-books/meridian/internal/tax"
)

// DocumentKind selects the debit/credit orientation of the built lines.
type DocumentKind string

const (
	// KindInvoice debits the receivable control and credits revenue and tax.
	KindInvoice DocumentKind = "INVOICE"
	// KindBill debits expense and tax and credits the payable control.
	KindBill DocumentKind = "BILL"
	// KindReceipt debits the bank account and credits the receivable control.
	KindReceipt DocumentKind = "RECEIPT"
	// KindDisbursement debits the payable control and credits the bank account.
	KindDisbursement DocumentKind = "DISBURSEMENT"
)

// DistributionLine is one revenue, expense or allocation amount of a
// document. Amounts are always positive; the kind decides the side.
type DistributionLine struct {
	AccountID   int64
	Amount      decimal.Decimal
	Description string
}

// Document is the builder input. ControlAccountID is the AR or AP control
// the document settles against; BankAccountID is only used by payments.
type Document struct {
	Kind             DocumentKind
	Number           string
	Currency         string
	ControlAccountID int64
	BankAccountID    int64
	TaxAccountID     int64
	Distribution     []DistributionLine
	Taxes            []tax.GroupedTax
}

// Total returns distribution plus tax, the amount carried by the control
// line.
func (d Document) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Distribution {
		total = total.Add(line.Amount)
	}
	for _, t := range d.Taxes {
		total = total.Add(t.Amount)
	}
	return total
}

func (d Document) validate() error {
	if d.ControlAccountID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "control account required")
	}
	if len(d.Distribution) == 0 {
		return shared.NewError(shared.CodeInvalidInput, "at least one distribution line required")
	}
	for i, line := range d.Distribution {
		if line.AccountID == 0 {
			return shared.Errorf(shared.CodeInvalidInput, "distribution line %d missing account", i+1)
		}
		if !line.Amount.IsPositive() {
			return shared.Errorf(shared.CodeInvalidInput, "distribution line %d must be positive", i+1)
		}
	}
	if len(d.Taxes) > 0 && d.TaxAccountID == 0 {
		return shared.NewError(shared.CodeInvalidInput, "tax account required when taxes are present")
	}
	switch d.Kind {
	case KindInvoice, KindBill:
	case KindReceipt, KindDisbursement:
		if d.BankAccountID == 0 {
			return shared.NewError(shared.CodeInvalidInput, "bank account required for payments")
		}
		if len(d.Taxes) > 0 {
			return shared.NewError(shared.CodeInvalidInput, "payments carry no tax lines")
		}
	default:
		return shared.Errorf(shared.CodeInvalidInput, "unknown document kind %q", d.Kind)
	}
	return nil
}

// groupDistribution merges distribution lines on the same account into one,
// mirroring the tax grouping, so a document with several lines on one
// revenue or expense account emits a single GL line. First-seen order and
// description are kept.
func groupDistribution(dist []DistributionLine) []DistributionLine {
	index := make(map[int64]int, len(dist))
	grouped := make([]DistributionLine, 0, len(dist))
	for _, d := range dist {
		if i, ok := index[d.AccountID]; ok {
			grouped[i].Amount = grouped[i].Amount.Add(d.Amount)
			continue
		}
		index[d.AccountID] = len(grouped)
		grouped = append(grouped, d)
	}
	return grouped
}

// BuildLines produces the balanced journal lines for the document. The
// control line carries the document total on one side; distribution and
// grouped tax lines carry the other, one line per distinct account. Output
// always sums to zero by construction.
func BuildLines(doc Document) ([]journals.LineInput, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	total := doc.Total()
	ref := doc.Number
	lines := make([]journals.LineInput, 0, len(doc.Distribution)+len(doc.Taxes)+2)

	switch doc.Kind {
	case KindInvoice:
		lines = append(lines, journals.LineInput{
			AccountID:   doc.ControlAccountID,
			Debit:       total,
			Description: fmt.Sprintf("AR %s", doc.Number),
			Reference:   ref,
		})
		for _, d := range groupDistribution(doc.Distribution) {
			lines = append(lines, journals.LineInput{
				AccountID:   d.AccountID,
				Credit:      d.Amount,
				Description: d.Description,
				Reference:   ref,
			})
		}
		for _, t := range doc.Taxes {
			lines = append(lines, journals.LineInput{
				AccountID:   doc.TaxAccountID,
				Credit:      t.Amount,
				Description: fmt.Sprintf("tax %s", t.TaxCode),
				Reference:   ref,
			})
		}
	case KindBill:
		for _, d := range groupDistribution(doc.Distribution) {
			lines = append(lines, journals.LineInput{
				AccountID:   d.AccountID,
				Debit:       d.Amount,
				Description: d.Description,
				Reference:   ref,
			})
		}
		for _, t := range doc.Taxes {
			lines = append(lines, journals.LineInput{
				AccountID:   doc.TaxAccountID,
				Debit:       t.Amount,
				Description: fmt.Sprintf("tax %s", t.TaxCode),
				Reference:   ref,
			})
		}
		lines = append(lines, journals.LineInput{
			AccountID:   doc.ControlAccountID,
			Credit:      total,
			Description: fmt.Sprintf("AP %s", doc.Number),
			Reference:   ref,
		})
	case KindReceipt:
		lines = append(lines, journals.LineInput{
			AccountID:   doc.BankAccountID,
			Debit:       total,
			Description: fmt.Sprintf("receipt %s", doc.Number),
			Reference:   ref,
		})
		for _, d := range doc.Distribution {
			lines = append(lines, journals.LineInput{
				AccountID:   doc.ControlAccountID,
				Credit:      d.Amount,
				Description: d.Description,
				Reference:   ref,
			})
		}
	case KindDisbursement:
		for _, d := range doc.Distribution {
			lines = append(lines, journals.LineInput{
				AccountID:   doc.ControlAccountID,
				Debit:       d.Amount,
				Description: d.Description,
				Reference:   ref,
			})
		}
		lines = append(lines, journals.LineInput{
			AccountID:   doc.BankAccountID,
			Credit:      total,
			Description: fmt.Sprintf("payment %s", doc.Number),
			Reference:   ref,
		})
	}

	return lines, nil
}
