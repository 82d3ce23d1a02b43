package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates journal lifecycle values. The string values are
// contractual persisted state and must not be renamed.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusPosted          Status = "posted"
)

// Journal is an atomic, balanced set of debit/credit lines.
type Journal struct {
	ID             int64
	TenantID       int64
	CompanyID      int64
	Number         string
	PeriodID       int64
	Date           time.Time
	Currency       string
	Status         Status
	SourceModule   string
	SourceID       uuid.UUID
	Memo           string
	IdempotencyKey string
	// ReviewRequired marks journals posted with an FX rate past the
	// acceptable staleness bound; downstream audit picks these up.
	ReviewRequired bool
	PostedBy       int64
	PostedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line stores a debit or credit amount for an account. Lines are never
// mutated after posting; corrections are reversing entries.
type Line struct {
	ID          int64
	JournalID   int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Reference   string
	CreatedAt   time.Time
}
