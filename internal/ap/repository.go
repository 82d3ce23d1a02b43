package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// PgRepository provides PostgreSQL backed bill persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const billColumns = `id, tenant_id, company_id, number, supplier_id, currency, exchange_rate,
issue_date, due_date, status, subtotal, tax_total, total, allocated, journal_id, review_required,
created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.TenantID, &b.CompanyID, &b.Number, &b.SupplierID,
		&b.Currency, &b.ExchangeRate, &b.IssueDate, &b.DueDate, &b.Status,
		&b.Subtotal, &b.TaxTotal, &b.Total, &b.Allocated, &b.JournalID,
		&b.ReviewRequired, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// Create inserts the bill header and lines in one transaction.
func (r *PgRepository) Create(ctx context.Context, bill Bill, companyCode string) (Bill, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Bill{}, err
	}
	defer tx.Rollback(ctx)

	scope := shared.Scope{TenantID: bill.TenantID, CompanyID: bill.CompanyID}
	if bill.Number == "" {
		bill.Number, err = shared.NextDocumentNumber(ctx, tx, scope, companyCode, shared.DocBill)
		if err != nil {
			return Bill{}, fmt.Errorf("allocate bill number: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `INSERT INTO bills
(id, tenant_id, company_id, number, supplier_id, currency, exchange_rate, issue_date, due_date,
 status, subtotal, tax_total, total, allocated, review_required)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+billColumns, bill.ID, bill.TenantID, bill.CompanyID, bill.Number, bill.SupplierID,
		bill.Currency, bill.ExchangeRate, bill.IssueDate, bill.DueDate, string(bill.Status),
		bill.Subtotal, bill.TaxTotal, bill.Total, bill.Allocated, bill.ReviewRequired)
	created, err := scanBill(row)
	if err != nil {
		return Bill{}, err
	}

	for _, line := range bill.Lines {
		err = tx.QueryRow(ctx, `INSERT INTO bill_lines
(bill_id, account_id, description, quantity, unit_price, tax_code, tax_rate, amount, tax_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			bill.ID, line.AccountID, line.Description, line.Quantity, line.UnitPrice,
			line.TaxCode, line.TaxRate, line.Amount, line.TaxAmount).Scan(&line.ID)
		if err != nil {
			return Bill{}, err
		}
		created.Lines = append(created.Lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return Bill{}, err
	}
	return created, nil
}

// Get loads a bill with its lines.
func (r *PgRepository) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	bill, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, shared.Errorf(shared.CodeNotFound, "bill %s not found", id)
	}
	if err != nil {
		return Bill{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, account_id, description, quantity, unit_price,
tax_code, tax_rate, amount, tax_amount FROM bill_lines WHERE bill_id=$1 ORDER BY id`, id)
	if err != nil {
		return Bill{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.AccountID, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.TaxCode, &line.TaxRate, &line.Amount, &line.TaxAmount); err != nil {
			return Bill{}, err
		}
		bill.Lines = append(bill.Lines, line)
	}
	return bill, rows.Err()
}

// List returns bill headers newest first.
func (r *PgRepository) List(ctx context.Context, scope shared.Scope) ([]Bill, error) {
	return r.list(ctx, `SELECT `+billColumns+` FROM bills
WHERE tenant_id=$1 AND company_id=$2 ORDER BY created_at DESC`, scope)
}

// ListOutstanding returns bills that still carry an unpaid balance.
func (r *PgRepository) ListOutstanding(ctx context.Context, scope shared.Scope) ([]Bill, error) {
	return r.list(ctx, `SELECT `+billColumns+` FROM bills
WHERE tenant_id=$1 AND company_id=$2 AND status IN ('posted','partially_paid')
AND total > allocated ORDER BY due_date`, scope)
}

func (r *PgRepository) list(ctx context.Context, query string, scope shared.Scope) ([]Bill, error) {
	rows, err := r.pool.Query(ctx, query, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// MarkPosted transitions the bill to posted and links its journal.
func (r *PgRepository) MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE bills
SET status=$4, journal_id=$5, review_required=$6, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id, string(StatusPosted), journalID, reviewRequired)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "bill %s not found", id)
	}
	return nil
}

// UpdateStatus moves the bill to the given status.
func (r *PgRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE bills SET status=$4, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "bill %s not found", id)
	}
	return nil
}

// ApplyAllocation bumps the allocated amount and status together.
func (r *PgRepository) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE bills
SET allocated = allocated + $4, status=$5, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND allocated + $4 <= total`,
		scope.TenantID, scope.CompanyID, id, amount, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeAllocationExceeds,
			"allocation on bill %s exceeds outstanding balance", id)
	}
	return nil
}
