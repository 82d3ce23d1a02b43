package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/shared"
)

// PgRepository provides PostgreSQL backed payment persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const paymentColumns = `id, tenant_id, company_id, number, type, counterparty_id, currency,
pay_date, bank_account_id, amount, status, method, memo, journal_id, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.CompanyID, &p.Number, &p.Type, &p.CounterpartyID,
		&p.Currency, &p.Date, &p.BankAccountID, &p.Amount, &p.Status, &p.Method, &p.Memo,
		&p.JournalID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create inserts the payment header and allocations in one transaction.
func (r *PgRepository) Create(ctx context.Context, p Payment, companyCode string) (Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Payment{}, err
	}
	defer tx.Rollback(ctx)

	scope := shared.Scope{TenantID: p.TenantID, CompanyID: p.CompanyID}
	if p.Number == "" {
		p.Number, err = shared.NextDocumentNumber(ctx, tx, scope, companyCode, shared.DocPayment)
		if err != nil {
			return Payment{}, fmt.Errorf("allocate payment number: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `INSERT INTO payments
(id, tenant_id, company_id, number, type, counterparty_id, currency, pay_date, bank_account_id,
 amount, status, method, memo)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+paymentColumns, p.ID, p.TenantID, p.CompanyID, p.Number, string(p.Type),
		p.CounterpartyID, p.Currency, p.Date, p.BankAccountID, p.Amount, string(p.Status),
		p.Method, p.Memo)
	created, err := scanPayment(row)
	if err != nil {
		return Payment{}, err
	}

	for _, a := range p.Allocations {
		err = tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, document_id, amount)
VALUES ($1, $2, $3) RETURNING id`, p.ID, a.DocumentID, a.Amount).Scan(&a.ID)
		if err != nil {
			return Payment{}, err
		}
		created.Allocations = append(created.Allocations, a)
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, err
	}
	return created, nil
}

// Get loads a payment with its allocations.
func (r *PgRepository) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.Errorf(shared.CodeNotFound, "payment %s not found", id)
	}
	if err != nil {
		return Payment{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, document_id, amount FROM payment_allocations
WHERE payment_id=$1 ORDER BY id`, id)
	if err != nil {
		return Payment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Amount); err != nil {
			return Payment{}, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	return p, rows.Err()
}

// List returns payment headers newest first.
func (r *PgRepository) List(ctx context.Context, scope shared.Scope) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE tenant_id=$1 AND company_id=$2 ORDER BY created_at DESC`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPosted transitions the payment to posted and links its journal.
func (r *PgRepository) MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE payments SET status=$4, journal_id=$5, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id, string(StatusPosted), journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "payment %s not found", id)
	}
	return nil
}
