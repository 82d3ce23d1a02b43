package ar

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

// PgRepository provides PostgreSQL backed invoice persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const invoiceColumns = `id, tenant_id, company_id, number, customer_id, currency, exchange_rate,
issue_date, due_date, status, subtotal, tax_total, total, allocated, journal_id, review_required,
created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.Number, &inv.CustomerID,
		&inv.Currency, &inv.ExchangeRate, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.Allocated, &inv.JournalID,
		&inv.ReviewRequired, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

// Create inserts the invoice header and lines in one transaction. When the
// invoice carries no number one is allocated from the document sequence.
func (r *PgRepository) Create(ctx context.Context, inv Invoice, companyCode string) (Invoice, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Invoice{}, err
	}
	defer tx.Rollback(ctx)

	scope := shared.Scope{TenantID: inv.TenantID, CompanyID: inv.CompanyID}
	if inv.Number == "" {
		inv.Number, err = shared.NextDocumentNumber(ctx, tx, scope, companyCode, shared.DocInvoice)
		if err != nil {
			return Invoice{}, fmt.Errorf("allocate invoice number: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `INSERT INTO invoices
(id, tenant_id, company_id, number, customer_id, currency, exchange_rate, issue_date, due_date,
 status, subtotal, tax_total, total, allocated, review_required)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+invoiceColumns, inv.ID, inv.TenantID, inv.CompanyID, inv.Number, inv.CustomerID,
		inv.Currency, inv.ExchangeRate, inv.IssueDate, inv.DueDate, string(inv.Status),
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.Allocated, inv.ReviewRequired)
	created, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, err
	}

	for _, line := range inv.Lines {
		err = tx.QueryRow(ctx, `INSERT INTO invoice_lines
(invoice_id, account_id, description, quantity, unit_price, tax_code, tax_rate, amount, tax_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			inv.ID, line.AccountID, line.Description, line.Quantity, line.UnitPrice,
			line.TaxCode, line.TaxRate, line.Amount, line.TaxAmount).Scan(&line.ID)
		if err != nil {
			return Invoice{}, err
		}
		created.Lines = append(created.Lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// Get loads an invoice with its lines ordered as entered.
func (r *PgRepository) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.Errorf(shared.CodeNotFound, "invoice %s not found", id)
	}
	if err != nil {
		return Invoice{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, account_id, description, quantity, unit_price,
tax_code, tax_rate, amount, tax_amount FROM invoice_lines WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.AccountID, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.TaxCode, &line.TaxRate, &line.Amount, &line.TaxAmount); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// List returns invoice headers newest first.
func (r *PgRepository) List(ctx context.Context, scope shared.Scope) ([]Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE tenant_id=$1 AND company_id=$2 ORDER BY created_at DESC`, scope)
}

// ListOutstanding returns invoices that still carry an unpaid balance.
func (r *PgRepository) ListOutstanding(ctx context.Context, scope shared.Scope) ([]Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE tenant_id=$1 AND company_id=$2 AND status IN ('posted','partially_paid')
AND total > allocated ORDER BY due_date`, scope)
}

func (r *PgRepository) list(ctx context.Context, query string, scope shared.Scope) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkPosted transitions the invoice to posted and links its journal.
func (r *PgRepository) MarkPosted(ctx context.Context, scope shared.Scope, id uuid.UUID, journalID int64, reviewRequired bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE invoices
SET status=$4, journal_id=$5, review_required=$6, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id, string(StatusPosted), journalID, reviewRequired)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "invoice %s not found", id)
	}
	return nil
}

// UpdateStatus moves the invoice to the given status.
func (r *PgRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status Status) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE invoices SET status=$4, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeNotFound, "invoice %s not found", id)
	}
	return nil
}

// ApplyAllocation bumps the allocated amount and status together so a
// concurrent allocation can never overshoot the total.
func (r *PgRepository) ApplyAllocation(ctx context.Context, scope shared.Scope, id uuid.UUID, amount decimal.Decimal, status Status) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE invoices
SET allocated = allocated + $4, status=$5, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND allocated + $4 <= total`,
		scope.TenantID, scope.CompanyID, id, amount, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.CodeAllocationExceeds,
			"allocation on invoice %s exceeds outstanding balance", id)
	}
	return nil
}
