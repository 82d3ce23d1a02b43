package journals

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/shared"
)

// Repository encapsulates DB operations for journals. Posting runs inside
// WithTx so a half-written journal is never observable.
type Repository interface {
	List(ctx context.Context, scope shared.Scope) ([]Journal, error)
	GetWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error)
	CountByStatusInPeriod(ctx context.Context, scope shared.Scope, periodID int64, statuses []Status) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertJournal(ctx context.Context, in PostingInput, number string) (Journal, error)
	InsertLines(ctx context.Context, journalID int64, lines []LineInput) error
	GetJournalWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	InsertIdempotencyKey(ctx context.Context, key, module string, journalID int64) error

	// Period reads needed inside the posting transaction: the status check
	// must see the then-current committed state.
	GetPeriodForUpdate(ctx context.Context, scope shared.Scope, periodID int64) (periods.Period, error)
	NextDocumentNumber(ctx context.Context, scope shared.Scope, companyCode string, doc shared.DocumentType) (string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const journalColumns = `id, tenant_id, company_id, number, period_id, date, currency, status, source_module, source_id, memo, idempotency_key, review_required, posted_by, posted_at, created_at, updated_at`

func scanJournal(row pgx.Row) (Journal, error) {
	var j Journal
	var idemKey *string
	err := row.Scan(&j.ID, &j.TenantID, &j.CompanyID, &j.Number, &j.PeriodID, &j.Date, &j.Currency,
		&j.Status, &j.SourceModule, &j.SourceID, &j.Memo, &idemKey, &j.ReviewRequired,
		&j.PostedBy, &j.PostedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Journal{}, err
	}
	if idemKey != nil {
		j.IdempotencyKey = *idemKey
	}
	return j, nil
}

func (r *repository) List(ctx context.Context, scope shared.Scope) ([]Journal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+journalColumns+` FROM journals
WHERE tenant_id=$1 AND company_id=$2 ORDER BY number DESC`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, j)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error) {
	return getJournalWithLines(ctx, r.db, scope, id)
}

func (r *repository) CountByStatusInPeriod(ctx context.Context, scope shared.Scope, periodID int64, statuses []Status) (int64, error) {
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journals
WHERE tenant_id=$1 AND company_id=$2 AND period_id=$3 AND status = ANY($4)`,
		scope.TenantID, scope.CompanyID, periodID, raw).Scan(&count)
	return count, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getJournalWithLines(ctx context.Context, q querier, scope shared.Scope, id int64) (Journal, error) {
	row := q.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	j, err := scanJournal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, shared.Errorf(shared.CodeNotFound, "journal %d not found", id)
		}
		return Journal{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, description, reference, created_at
FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Journal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit,
			&line.Description, &line.Reference, &line.CreatedAt); err != nil {
			return Journal{}, err
		}
		j.Lines = append(j.Lines, line)
	}
	return j, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertJournal(ctx context.Context, in PostingInput, number string) (Journal, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journals
(tenant_id, company_id, number, period_id, date, currency, status, source_module, source_id, memo, idempotency_key, review_required, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),$12,$13,NOW())
RETURNING id, posted_at, created_at, updated_at`,
		in.Scope.TenantID, in.Scope.CompanyID, number, in.PeriodID, in.Date, in.Currency,
		string(StatusPosted), in.SourceModule, in.SourceID, in.Memo, in.IdempotencyKey,
		in.ReviewRequired, in.PostedBy)
	j := Journal{
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
	}
	if err := row.Scan(&j.ID, &j.PostedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Journal{}, shared.Errorf(shared.CodeDuplicateNumber, "journal number %s already exists", number)
		}
		return Journal{}, err
	}
	return j, nil
}

func (r *txRepository) InsertLines(ctx context.Context, journalID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_id, debit, credit, description, reference)
VALUES ($1,$2,$3,$4,$5,$6)`, journalID, line.AccountID, line.Debit, line.Credit, line.Description, line.Reference); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, scope shared.Scope, id int64) (Journal, error) {
	return getJournalWithLines(ctx, r.tx, scope, id)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journals SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "journal %d not found", id)
	}
	return nil
}

func (r *txRepository) InsertIdempotencyKey(ctx context.Context, key, module string, journalID int64) error {
	return shared.InsertIdempotencyKeyTx(ctx, r.tx, key, module, journalID)
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, scope shared.Scope, periodID int64) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, company_id, code, start_date, end_date, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at
FROM periods WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR SHARE`, scope.TenantID, scope.CompanyID, periodID).
		Scan(&p.ID, &p.TenantID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.Status,
			&p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.Errorf(shared.CodeNotFound, "period %d not found", periodID)
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) NextDocumentNumber(ctx context.Context, scope shared.Scope, companyCode string, doc shared.DocumentType) (string, error) {
	return shared.NextDocumentNumber(ctx, r.tx, scope, companyCode, doc)
}
