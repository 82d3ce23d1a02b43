package periods

import (
	"time"

	"github.com/meridian-books/meridian/internal/shared"
)

// Status enumerates fiscal period states. The string values are contractual
// persisted state and must not be renamed.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusLocked Status = "locked"
)

// Period represents a fiscal period window scoped to a tenant and company.
type Period struct {
	ID        int64
	TenantID  int64
	CompanyID int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	ClosedBy  *int64
	ClosedAt  *time.Time
	LockedBy  *int64
	LockedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// ValidateTransition enforces the strict open -> closed -> locked ordering.
// The only reversal is closed -> open via an authorized reopen; locked is
// terminal.
func ValidateTransition(current, target Status) error {
	switch current {
	case StatusOpen:
		if target == StatusClosed {
			return nil
		}
	case StatusClosed:
		if target == StatusLocked || target == StatusOpen {
			return nil
		}
	case StatusLocked:
		// terminal
	}
	return shared.Errorf(shared.CodeInvalidStateTransition,
		"period cannot move from %s to %s", current, target)
}
