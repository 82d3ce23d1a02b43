package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/shared"
)

// Repository loads the chart of accounts for a scope.
type Repository interface {
	MapByScope(ctx context.Context, scope shared.Scope) (Map, error)
	GetByCode(ctx context.Context, scope shared.Scope, code string) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, company_id, code, name, account_type, parent_id, level, is_active, is_cash, currency, category, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var category *string
	err := row.Scan(&a.ID, &a.TenantID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID,
		&a.Level, &a.IsActive, &a.IsCash, &a.Currency, &category, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	if category != nil {
		a.Category = Category(*category)
	}
	return a, nil
}

func (r *repository) MapByScope(ctx context.Context, scope shared.Scope) (Map, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts
WHERE tenant_id=$1 AND company_id=$2 ORDER BY code ASC`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(Map)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		m[acc.ID] = acc
	}
	return m, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, scope shared.Scope, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts
WHERE tenant_id=$1 AND company_id=$2 AND code=$3`, scope.TenantID, scope.CompanyID, code)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.Errorf(shared.CodeNotFound, "account %s not found", code)
		}
		return Account{}, err
	}
	return acc, nil
}
