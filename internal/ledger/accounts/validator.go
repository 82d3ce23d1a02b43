package accounts

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/meridian-books/meridian/internal/shared"
)

// DirectedLine carries the debit/credit direction of a candidate journal
// line, enough for the advisory normal-balance check.
type DirectedLine struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Finding is an advisory result: it flags a suspect line without blocking
// the posting.
type Finding struct {
	AccountID int64
	Code      string
	Message   string
}

// Validator runs chart-of-accounts rules against a candidate journal.
// Hard failures return coded errors; advisory checks return findings.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() Validator {
	return Validator{}
}

// ValidateExists fails when a referenced account is missing or inactive.
func (Validator) ValidateExists(refs []int64, all Map) error {
	for _, id := range refs {
		acc, ok := all[id]
		if !ok {
			return shared.Errorf(shared.CodeNotFound, "account %d not found in scope", id)
		}
		if !acc.IsActive {
			return shared.Errorf(shared.CodeInvalidInput, "account %s is inactive", acc.Code)
		}
	}
	return nil
}

// ValidateCurrencyConsistency fails when a referenced account's currency
// differs from the journal currency. The journal currency itself must be a
// well-formed ISO 4217 code.
func (Validator) ValidateCurrencyConsistency(refs []int64, journalCurrency string, all Map) error {
	if _, err := currency.ParseISO(journalCurrency); err != nil {
		return shared.Errorf(shared.CodeCurrencyMismatch, "unknown currency code %q", journalCurrency)
	}
	for _, id := range refs {
		acc, ok := all[id]
		if !ok {
			continue
		}
		if acc.Currency != "" && acc.Currency != journalCurrency {
			return shared.Errorf(shared.CodeCurrencyMismatch,
				"account %s is denominated in %s, journal is %s", acc.Code, acc.Currency, journalCurrency).
				WithDetail("accountId", acc.ID)
		}
	}
	return nil
}

// ValidateControlAccounts fails when a referenced account is a control node.
// Both properties are checked independently: a level-0 node is a control
// account even with no children, and a node with children is a control
// account at any level. Child lookup runs against the full scope map, not
// just the referenced subset.
func (Validator) ValidateControlAccounts(refs []int64, all Map) error {
	children := all.ChildIndex()
	for _, id := range refs {
		acc, ok := all[id]
		if !ok {
			continue
		}
		if acc.Level == 0 {
			return shared.Errorf(shared.CodeControlAccountPosting,
				"account %s is a top-level control account", acc.Code).WithDetail("accountId", acc.ID)
		}
		if len(children[acc.ID]) > 0 {
			return shared.Errorf(shared.CodeControlAccountPosting,
				"account %s has child accounts and cannot take direct postings", acc.Code).WithDetail("accountId", acc.ID)
		}
	}
	return nil
}

// ValidateNormalBalances flags lines whose direction contradicts the
// account's normal balance. Advisory only: callers surface the findings and
// proceed.
func (Validator) ValidateNormalBalances(lines []DirectedLine, all Map) []Finding {
	var findings []Finding
	for _, line := range lines {
		acc, ok := all[line.AccountID]
		if !ok {
			continue
		}
		normal := acc.Type.NormalBalance()
		contrary := (normal == NormalDebit && line.Credit.IsPositive()) ||
			(normal == NormalCredit && line.Debit.IsPositive())
		if contrary {
			findings = append(findings, Finding{
				AccountID: acc.ID,
				Code:      "CONTRA_NORMAL_BALANCE",
				Message:   "line direction contradicts the account's normal " + string(normal) + " balance",
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].AccountID < findings[j].AccountID })
	return findings
}

// RequireType fails when the account is not of the expected type. The
// posting engine uses this for AR/AP control, revenue, and output-tax lines.
func (Validator) RequireType(id int64, want AccountType, all Map) error {
	acc, ok := all[id]
	if !ok {
		return shared.Errorf(shared.CodeNotFound, "account %d not found in scope", id)
	}
	if acc.Type != want {
		return shared.Errorf(shared.CodeInvalidInput,
			"account %s must be of type %s, got %s", acc.Code, want, acc.Type).WithDetail("accountId", acc.ID)
	}
	return nil
}
