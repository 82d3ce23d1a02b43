package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/shared"
)

// Repository persists fiscal periods.
type Repository interface {
	Get(ctx context.Context, scope shared.Scope, id int64) (Period, error)
	List(ctx context.Context, scope shared.Scope) ([]Period, error)
	Create(ctx context.Context, in CreateInput) (Period, error)
	RangeConflict(ctx context.Context, scope shared.Scope, start, end time.Time) (bool, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, id int64, status Status, actorID int64, at time.Time) error
	FindByDate(ctx context.Context, scope shared.Scope, date time.Time) (Period, error)
	NextAfter(ctx context.Context, scope shared.Scope, end time.Time) (Period, bool, error)
	// UnreconciledBankCount feeds the close-readiness check.
	UnreconciledBankCount(ctx context.Context, scope shared.Scope, periodID int64) (int64, error)
	// DistinctPosters lists the actor ids that posted journals in the
	// period, for the segregation-of-duties check.
	DistinctPosters(ctx context.Context, scope shared.Scope, periodID int64) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, tenant_id, company_id, code, start_date, end_date, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) Get(ctx context.Context, scope shared.Scope, id int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.Errorf(shared.CodeNotFound, "period %d not found", id)
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, scope shared.Scope) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id=$1 AND company_id=$2 ORDER BY start_date ASC`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, in CreateInput) (Period, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO periods (tenant_id, company_id, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+periodColumns,
		in.Scope.TenantID, in.Scope.CompanyID, in.Code, in.StartDate, in.EndDate, string(StatusOpen))
	return scanPeriod(row)
}

func (r *repository) RangeConflict(ctx context.Context, scope shared.Scope, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM periods
WHERE tenant_id=$1 AND company_id=$2 AND start_date <= $4 AND end_date >= $3)`,
		scope.TenantID, scope.CompanyID, start, end).Scan(&conflict)
	return conflict, err
}

func (r *repository) UpdateStatus(ctx context.Context, scope shared.Scope, id int64, status Status, actorID int64, at time.Time) error {
	var query string
	args := []any{scope.TenantID, scope.CompanyID, id, string(status)}
	switch status {
	case StatusClosed:
		query = `UPDATE periods SET status=$4, closed_by=$5, closed_at=$6, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`
		args = append(args, actorID, at)
	case StatusLocked:
		query = `UPDATE periods SET status=$4, locked_by=$5, locked_at=$6, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`
		args = append(args, actorID, at)
	default:
		query = `UPDATE periods SET status=$4, closed_by=NULL, closed_at=NULL, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`
	}
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "period %d not found", id)
	}
	return nil
}

func (r *repository) FindByDate(ctx context.Context, scope shared.Scope, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id=$1 AND company_id=$2 AND start_date <= $3 AND end_date >= $3`,
		scope.TenantID, scope.CompanyID, date)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.Errorf(shared.CodeNotFound, "no period covers %s", date.Format("2006-01-02"))
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) NextAfter(ctx context.Context, scope shared.Scope, end time.Time) (Period, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id=$1 AND company_id=$2 AND start_date > $3 ORDER BY start_date ASC LIMIT 1`,
		scope.TenantID, scope.CompanyID, end)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, err
	}
	return p, true, nil
}

func (r *repository) UnreconciledBankCount(ctx context.Context, scope shared.Scope, periodID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions
WHERE tenant_id=$1 AND company_id=$2 AND period_id=$3 AND reconciled = FALSE`,
		scope.TenantID, scope.CompanyID, periodID).Scan(&count)
	return count, err
}

func (r *repository) DistinctPosters(ctx context.Context, scope shared.Scope, periodID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT posted_by FROM journals
WHERE tenant_id=$1 AND company_id=$2 AND period_id=$3 AND posted_by IS NOT NULL`,
		scope.TenantID, scope.CompanyID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posters []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		posters = append(posters, id)
	}
	return posters, rows.Err()
}
