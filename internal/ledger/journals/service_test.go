package journals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

type memoryRepo struct {
	journals    map[int64]Journal
	lines       map[int64][]Line
	periods     map[int64]periods.Period
	idem        map[string]int64
	seq         map[shared.DocumentType]int64
	nextID      int64
	failOnLines bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		journals: make(map[int64]Journal),
		lines:    make(map[int64][]Line),
		periods:  make(map[int64]periods.Period),
		idem:     make(map[string]int64),
		seq:      make(map[shared.DocumentType]int64),
	}
}

func (r *memoryRepo) List(ctx context.Context, scope shared.Scope) ([]Journal, error) {
	var out []Journal
	for _, j := range r.journals {
		out = append(out, j)
	}
	return out, nil
}

func (r *memoryRepo) GetWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error) {
	j, ok := r.journals[id]
	if !ok {
		return Journal{}, shared.Errorf(shared.CodeNotFound, "journal %d not found", id)
	}
	j.Lines = r.lines[id]
	return j, nil
}

func (r *memoryRepo) CountByStatusInPeriod(ctx context.Context, scope shared.Scope, periodID int64, statuses []Status) (int64, error) {
	var count int64
	for _, j := range r.journals {
		if j.PeriodID != periodID {
			continue
		}
		for _, s := range statuses {
			if j.Status == s {
				count++
			}
		}
	}
	return count, nil
}

// WithTx stages writes and applies them only when fn succeeds, mirroring the
// all-or-nothing behavior of the SQL transaction.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, j := range tx.stagedJournals {
		r.journals[id] = j
	}
	for id, lines := range tx.stagedLines {
		r.lines[id] = lines
	}
	for k, v := range tx.stagedIdem {
		r.idem[k] = v
	}
	return nil
}

type memoryTx struct {
	repo           *memoryRepo
	stagedJournals map[int64]Journal
	stagedLines    map[int64][]Line
	stagedIdem     map[string]int64
}

func (t *memoryTx) InsertJournal(ctx context.Context, in PostingInput, number string) (Journal, error) {
	t.repo.nextID++
	j := Journal{
		ID:             t.repo.nextID,
		TenantID:       in.Scope.TenantID,
		CompanyID:      in.Scope.CompanyID,
		Number:         number,
		PeriodID:       in.PeriodID,
		Date:           in.Date,
		Currency:       in.Currency,
		Status:         StatusPosted,
		SourceModule:   in.SourceModule,
		SourceID:       in.SourceID,
		Memo:           in.Memo,
		IdempotencyKey: in.IdempotencyKey,
		ReviewRequired: in.ReviewRequired,
		PostedBy:       in.PostedBy,
		PostedAt:       time.Now(),
	}
	if t.stagedJournals == nil {
		t.stagedJournals = make(map[int64]Journal)
	}
	t.stagedJournals[j.ID] = j
	return j, nil
}

func (t *memoryTx) InsertLines(ctx context.Context, journalID int64, lines []LineInput) error {
	if t.repo.failOnLines {
		return errors.New("simulated line insert failure")
	}
	if t.stagedLines == nil {
		t.stagedLines = make(map[int64][]Line)
	}
	for _, l := range lines {
		t.stagedLines[journalID] = append(t.stagedLines[journalID], Line{
			JournalID: journalID, AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit,
			Description: l.Description, Reference: l.Reference,
		})
	}
	return nil
}

func (t *memoryTx) GetJournalWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error) {
	return t.repo.GetWithLines(ctx, scope, id)
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	j, ok := t.repo.journals[id]
	if !ok {
		return shared.Errorf(shared.CodeNotFound, "journal %d not found", id)
	}
	j.Status = status
	t.repo.journals[id] = j
	return nil
}

func (t *memoryTx) InsertIdempotencyKey(ctx context.Context, key, module string, journalID int64) error {
	if _, exists := t.repo.idem[key]; exists {
		return shared.ErrIdempotencyConflict
	}
	if t.stagedIdem == nil {
		t.stagedIdem = make(map[string]int64)
	}
	t.stagedIdem[key] = journalID
	return nil
}

func (t *memoryTx) GetPeriodForUpdate(ctx context.Context, scope shared.Scope, periodID int64) (periods.Period, error) {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return periods.Period{}, shared.Errorf(shared.CodeNotFound, "period %d not found", periodID)
	}
	return p, nil
}

func (t *memoryTx) NextDocumentNumber(ctx context.Context, scope shared.Scope, companyCode string, doc shared.DocumentType) (string, error) {
	t.repo.seq[doc]++
	return fmt.Sprintf("%s-%s-%06d", companyCode, doc, t.repo.seq[doc]), nil
}

func (r *memoryRepo) LookupJournal(ctx context.Context, key, module string) (int64, bool, error) {
	id, ok := r.idem[key]
	return id, ok, nil
}

type staticAccounts struct{ m accounts.Map }

func (s staticAccounts) MapByScope(ctx context.Context, scope shared.Scope) (accounts.Map, error) {
	return s.m, nil
}

func intPtr(v int64) *int64 { return &v }

func testAccounts() accounts.Map {
	return accounts.Map{
		1: {ID: 1, Code: "1000", Type: accounts.TypeAsset, Level: 0, IsActive: true, Currency: "MYR"},
		2: {ID: 2, Code: "1100", Name: "AR Trade", Type: accounts.TypeAsset, ParentID: intPtr(1), Level: 1, IsActive: true, Currency: "MYR"},
		3: {ID: 3, Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, Level: 1, IsActive: true, Currency: "MYR"},
		4: {ID: 4, Code: "2100", Name: "Output Tax", Type: accounts.TypeLiability, Level: 1, IsActive: true, Currency: "MYR"},
		5: {ID: 5, Code: "1200", Name: "Bank", Type: accounts.TypeAsset, Level: 1, IsActive: true, Currency: "MYR"},
	}
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, staticAccounts{m: testAccounts()}, nil, repo, nil)
}

func openPeriod(repo *memoryRepo, id int64, status periods.Status) {
	repo.periods[id] = periods.Period{
		ID: id, TenantID: 1, CompanyID: 1, Code: "2026-01", Status: status,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func validInput() PostingInput {
	return PostingInput{
		Scope:        testScope,
		PeriodID:     10,
		Date:         time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Currency:     "MYR",
		CompanyCode:  "ACME",
		SourceModule: "manual",
		SourceID:     uuid.New(),
		PostedBy:     7,
		UserRole:     shared.RoleAccountant,
		Lines: []LineInput{
			{AccountID: 2, Debit: d("1100")},
			{AccountID: 3, Credit: d("1000")},
			{AccountID: 4, Credit: d("100")},
		},
	}
}

func TestPostJournal(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	result, err := svc.Post(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Journal.Status)
	require.Equal(t, "ACME-JE-000001", result.Journal.Number)
	require.Len(t, repo.lines[result.Journal.ID], 3)
	require.False(t, result.Replayed)
}

func TestPostJournalUnbalancedWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	input.Lines[2].Credit = d("99") // 1100 != 1099
	_, err := svc.Post(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, shared.CodeUnbalancedJournal, shared.CodeOf(err))
	require.Empty(t, repo.journals)
}

func TestPostJournalControlAccountRejected(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	input.Lines[0].AccountID = 1 // level-0 control node
	_, err := svc.Post(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, shared.CodeControlAccountPosting, shared.CodeOf(err))
	require.Empty(t, repo.journals)
}

func TestPostJournalClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusClosed)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), validInput())
	require.Error(t, err)
	require.Equal(t, shared.CodePeriodNotOpen, shared.CodeOf(err))

	// An authorized override posts into the closed period.
	input := validInput()
	input.Override = true
	input.UserRole = shared.RoleController
	result, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Journal.Status)

	// An accountant's override is refused.
	input = validInput()
	input.Override = true
	input.UserRole = shared.RoleAccountant
	_, err = svc.Post(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, shared.CodePeriodNotOpen, shared.CodeOf(err))
}

func TestPostJournalLockedPeriodNeverAcceptsOverride(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusLocked)
	svc := newTestService(repo)

	input := validInput()
	input.Override = true
	input.UserRole = shared.RoleAdmin
	_, err := svc.Post(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, shared.CodePeriodNotOpen, shared.CodeOf(err))
}

func TestPostJournalDateOutsidePeriod(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	input.Date = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Post(context.Background(), input)
	require.Error(t, err)
	require.Empty(t, repo.journals)
}

func TestPostJournalAtomicRollback(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	repo.failOnLines = true
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), validInput())
	require.Error(t, err)
	require.Empty(t, repo.journals, "failed posting must leave no journal behind")
	require.Empty(t, repo.lines)
}

func TestPostJournalIdempotentReplay(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	input.IdempotencyKey = "abc123"
	first, err := svc.Post(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Journal.ID, second.Journal.ID)
	require.Len(t, repo.journals, 1, "replay must not double-post")
}

func TestPostJournalNormalBalanceFindingsAdvisory(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	// Credit the asset account: flagged but not blocked.
	input.Lines = []LineInput{
		{AccountID: 2, Credit: d("50")},
		{AccountID: 5, Debit: d("50")},
	}
	result, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	require.Equal(t, int64(2), result.Findings[0].AccountID)
}

func TestPostJournalCallerSuppliedNumber(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	input := validInput()
	input.Number = "ACME-JE-CUSTOM"
	result, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "ACME-JE-CUSTOM", result.Journal.Number)
}

func TestReverseJournal(t *testing.T) {
	repo := newMemoryRepo()
	openPeriod(repo, 10, periods.StatusOpen)
	svc := newTestService(repo)

	posted, err := svc.Post(context.Background(), validInput())
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{
		Scope:       testScope,
		JournalID:   posted.Journal.ID,
		ActorID:     7,
		UserRole:    shared.RoleAccountant,
		CompanyCode: "ACME",
	})
	require.NoError(t, err)
	require.Len(t, reversal.Lines, 3)
	// Debits and credits swap sides.
	require.True(t, reversal.Lines[0].Credit.Equal(d("1100")))
	require.True(t, reversal.Lines[1].Debit.Equal(d("1000")))
}

func TestValidateInputRules(t *testing.T) {
	base := validInput()

	tooFew := base
	tooFew.Lines = base.Lines[:1]
	require.Error(t, tooFew.Validate())

	bothSides := base
	bothSides.Lines = []LineInput{
		{AccountID: 2, Debit: d("10"), Credit: d("10")},
		{AccountID: 3, Credit: d("0")},
	}
	require.Error(t, bothSides.Validate())

	negative := base
	negative.Lines = []LineInput{
		{AccountID: 2, Debit: d("-5")},
		{AccountID: 3, Credit: d("-5")},
	}
	require.Error(t, negative.Validate())
}
