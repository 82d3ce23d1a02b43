package shared

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes surfaced to the transport layer.
// Renaming any of these is a breaking change for API consumers.
const (
	CodeCurrencyMismatch       = "CURRENCY_MISMATCH"
	CodeControlAccountPosting  = "CONTROL_ACCOUNT_POSTING"
	CodeLineTotalMismatch      = "LINE_TOTAL_MISMATCH"
	CodeUnbalancedJournal      = "UNBALANCED_JOURNAL"
	CodePeriodNotOpen          = "PERIOD_NOT_OPEN"
	CodeDuplicateNumber        = "DUPLICATE_NUMBER"
	CodeAllocationExceeds      = "ALLOCATION_EXCEEDS_OUTSTANDING"
	CodeFxSourceUnreachable    = "FX_SOURCE_UNREACHABLE"
	CodeTrialBalanceOutOfSync  = "TRIAL_BALANCE_OUT_OF_BALANCE"
	CodeBalanceSheetMismatch   = "BALANCE_SHEET_MISMATCH"
	CodeNotAuthorized          = "NOT_AUTHORIZED"
	CodeApprovalRequired       = "APPROVAL_REQUIRED"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
)

// Error carries a stable code alongside a human-readable message, plus
// optional details for the transport layer to render.
type Error struct {
	Code      string
	Message   string
	Details   map[string]any
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs a coded error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf constructs a coded error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsRetryable marks the error as safe to retry (external-dependency class).
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// CodeOf extracts the stable code from an error, or empty string.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
