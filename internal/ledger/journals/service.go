package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/shared"
)

// AccountSource supplies the full chart of accounts for a scope.
type AccountSource interface {
	MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error)
}

// AuditPort records posting actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPort publishes journal lifecycle events. Implementations must be
// fire-and-forget; posting never fails on a publish error.
type EventPort interface {
	JournalPosted(ctx context.Context, journal Journal)
}

// IdempotencyPort resolves a previously processed posting key.
type IdempotencyPort interface {
	LookupJournal(ctx context.Context, key, module string) (int64, bool, error)
}

// PostingResult is what a posting call hands back to the transport layer.
type PostingResult struct {
	Journal  Journal
	Findings []accounts.Finding
	// Replayed is true when the idempotency key matched an earlier posting
	// and the original journal was returned unchanged.
	Replayed bool
}

// Service posts, reverses, and lists journals. Posting is a pure function of
// (ledger state, input): the only mutable state is the persisted journal
// number sequence inside the same transaction.
type Service struct {
	repo       Repository
	accountSrc AccountSource
	validator  accounts.Validator
	audit      AuditPort
	events     EventPort
	idem       IdempotencyPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, accountSrc AccountSource, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		accountSrc: accountSrc,
		validator:  accounts.NewValidator(),
		audit:      audit,
		idem:       idem,
		logger:     logger,
		now:        time.Now,
	}
}

// WithEvents attaches an event publisher.
func (s *Service) WithEvents(events EventPort) *Service {
	s.events = events
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns all journals in scope.
func (s *Service) List(ctx context.Context, scope shared.Scope) ([]Journal, error) {
	return s.repo.List(ctx, scope)
}

// Get returns one journal with lines.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Journal, error) {
	return s.repo.GetWithLines(ctx, scope, id)
}

// Post validates the candidate journal against the chart of accounts and the
// period state, then persists it atomically. Any hard failure aborts before
// a single row is written.
func (s *Service) Post(ctx context.Context, input PostingInput) (PostingResult, error) {
	if err := input.Validate(); err != nil {
		return PostingResult{}, err
	}

	coa, err := s.accountSrc.MapByScope(ctx, input.Scope)
	if err != nil {
		return PostingResult{}, err
	}
	refs := make([]int64, 0, len(input.Lines))
	directed := make([]accounts.DirectedLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		refs = append(refs, line.AccountID)
		directed = append(directed, accounts.DirectedLine{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	if err := s.validator.ValidateExists(refs, coa); err != nil {
		return PostingResult{}, err
	}
	if err := s.validator.ValidateCurrencyConsistency(refs, input.Currency, coa); err != nil {
		return PostingResult{}, err
	}
	if err := s.validator.ValidateControlAccounts(refs, coa); err != nil {
		return PostingResult{}, err
	}
	findings := s.validator.ValidateNormalBalances(directed, coa)

	if input.IdempotencyKey != "" && s.idem != nil {
		if result, ok, err := s.replay(ctx, input, findings); err != nil {
			return PostingResult{}, err
		} else if ok {
			return result, nil
		}
	}

	var journal Journal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, input.Scope, input.PeriodID)
		if err != nil {
			return err
		}
		if err := ensurePostable(period, input.Override, input.UserRole); err != nil {
			return err
		}
		if !period.Contains(input.Date) {
			return shared.Errorf(shared.CodeInvalidInput,
				"journal date %s outside period %s", input.Date.Format("2006-01-02"), period.Code)
		}
		number := input.Number
		if number == "" {
			number, err = tx.NextDocumentNumber(ctx, input.Scope, input.CompanyCode, shared.DocJournal)
			if err != nil {
				return err
			}
		}
		journal, err = tx.InsertJournal(ctx, input, number)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, journal.ID, input.Lines); err != nil {
			return err
		}
		if input.IdempotencyKey != "" {
			if err := tx.InsertIdempotencyKey(ctx, input.IdempotencyKey, input.SourceModule, journal.ID); err != nil {
				return err
			}
		}
		journal.Lines = toLines(journal.ID, input.Lines, s.now())
		return nil
	})
	if err != nil {
		// A concurrent posting with the same key may have won the race;
		// return its result instead of failing the replay.
		if errors.Is(err, shared.ErrIdempotencyConflict) && s.idem != nil {
			if result, ok, rerr := s.replay(ctx, input, findings); rerr == nil && ok {
				return result, nil
			}
		}
		return PostingResult{}, err
	}

	s.recordAudit(ctx, input.Scope, input.PostedBy, "journal.post", journal.ID, map[string]any{
		"number":        journal.Number,
		"source_module": input.SourceModule,
		"source_id":     input.SourceID.String(),
	})
	if s.events != nil {
		s.events.JournalPosted(ctx, journal)
	}
	return PostingResult{Journal: journal, Findings: findings}, nil
}

func (s *Service) replay(ctx context.Context, input PostingInput, findings []accounts.Finding) (PostingResult, bool, error) {
	journalID, found, err := s.idem.LookupJournal(ctx, input.IdempotencyKey, input.SourceModule)
	if err != nil || !found {
		return PostingResult{}, false, err
	}
	journal, err := s.repo.GetWithLines(ctx, input.Scope, journalID)
	if err != nil {
		return PostingResult{}, false, err
	}
	return PostingResult{Journal: journal, Findings: findings, Replayed: true}, true, nil
}

// ensurePostable rejects postings into periods that are not open. A closed
// period accepts postings only with an explicit override from an authorized
// role; a locked period never does.
func ensurePostable(period periods.Period, override bool, role shared.Role) error {
	switch period.Status {
	case periods.StatusOpen:
		return nil
	case periods.StatusClosed:
		if override && role.CanOverridePeriod() {
			return nil
		}
		return shared.Errorf(shared.CodePeriodNotOpen, "period %s is closed", period.Code).
			WithDetail("status", string(period.Status))
	default:
		return shared.Errorf(shared.CodePeriodNotOpen, "period %s is locked", period.Code).
			WithDetail("status", string(period.Status))
	}
}

// Reverse creates a reversing entry for a posted journal. The original is
// never mutated.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Journal, error) {
	if input.JournalID == 0 {
		return Journal{}, shared.NewError(shared.CodeInvalidInput, "journal id required")
	}
	var reversal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithLines(ctx, input.Scope, input.JournalID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return shared.Errorf(shared.CodeInvalidStateTransition,
				"journal %s is %s, only posted journals can be reversed", original.Number, original.Status)
		}
		period, err := tx.GetPeriodForUpdate(ctx, input.Scope, original.PeriodID)
		if err != nil {
			return err
		}
		targetDate := original.Date
		if input.TargetDate != nil {
			targetDate = *input.TargetDate
		}
		if err := ensurePostable(period, false, input.UserRole); err != nil {
			return err
		}
		if !period.Contains(targetDate) {
			return shared.Errorf(shared.CodeInvalidInput,
				"reversal date %s outside period %s", targetDate.Format("2006-01-02"), period.Code)
		}
		posting := PostingInput{
			Scope:        input.Scope,
			PeriodID:     original.PeriodID,
			Date:         targetDate,
			Currency:     original.Currency,
			CompanyCode:  input.CompanyCode,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     uuid.New(),
			Memo:         defaultReversalMemo(input.Memo, original.Number),
			PostedBy:     input.ActorID,
			Lines:        flipLines(original.Lines),
		}
		number, err := tx.NextDocumentNumber(ctx, input.Scope, input.CompanyCode, shared.DocJournal)
		if err != nil {
			return err
		}
		reversal, err = tx.InsertJournal(ctx, posting, number)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, reversal.ID, posting.Lines); err != nil {
			return err
		}
		reversal.Lines = toLines(reversal.ID, posting.Lines, s.now())
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.recordAudit(ctx, input.Scope, input.ActorID, "journal.reverse", input.JournalID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, actorID int64, action string, journalID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID:  scope.TenantID,
		CompanyID: scope.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal",
		EntityID:  fmt.Sprintf("%d", journalID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func flipLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
			Reference:   line.Reference,
		})
	}
	return out
}

func toLines(journalID int64, lines []LineInput, ts time.Time) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, Line{
			JournalID:   journalID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			Reference:   line.Reference,
			CreatedAt:   ts,
		})
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
