// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/meridian-books/meridian/internal/shared"
)

// RespondError maps coded ledger errors to RFC7807 responses. The stable
// code travels in the problem type so API clients can branch without
// parsing messages.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.CodeOf(err)
	status := statusFor(code)
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	ProblemWithCode(w, status, code, detail)
}

func statusFor(code string) int {
	switch code {
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeDuplicateNumber,
		shared.CodePeriodNotOpen,
		shared.CodeInvalidStateTransition:
		return http.StatusConflict
	case shared.CodeInvalidInput,
		shared.CodeUnbalancedJournal,
		shared.CodeLineTotalMismatch,
		shared.CodeCurrencyMismatch,
		shared.CodeControlAccountPosting,
		shared.CodeAllocationExceeds:
		return http.StatusUnprocessableEntity
	case shared.CodeNotAuthorized, shared.CodeApprovalRequired:
		return http.StatusForbidden
	case shared.CodeFxSourceUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
