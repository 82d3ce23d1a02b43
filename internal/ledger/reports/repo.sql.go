package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/shared"
)

// Repository aggregates posted journal lines. Everything is computed from
// journal_lines at query time; no balance table exists to drift out of sync.
type Repository interface {
	AccountBalances(ctx context.Context, scope shared.Scope, from, asOf time.Time) ([]AccountBalance, error)
	CashMovements(ctx context.Context, scope shared.Scope, from, asOf time.Time) ([]ClassifiedMovement, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed aggregate repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// AccountBalances sums opening (before from) and window (from..asOf)
// debits/credits per leaf account, over posted journals only.
func (r *repository) AccountBalances(ctx context.Context, scope shared.Scope, from, asOf time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.id, a.code, a.name, a.account_type, a.parent_id, a.level, a.currency, COALESCE(a.category, 'CURRENT'),
       COALESCE(SUM(l.debit)  FILTER (WHERE j.date <  $3), 0) AS opening_debits,
       COALESCE(SUM(l.credit) FILTER (WHERE j.date <  $3), 0) AS opening_credits,
       COALESCE(SUM(l.debit)  FILTER (WHERE j.date >= $3 AND j.date <= $4), 0) AS period_debits,
       COALESCE(SUM(l.credit) FILTER (WHERE j.date >= $3 AND j.date <= $4), 0) AS period_credits
FROM chart_of_accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journals j ON j.id = l.journal_id AND j.status = 'posted' AND j.date <= $4
WHERE a.tenant_id = $1 AND a.company_id = $2
GROUP BY a.id, a.code, a.name, a.account_type, a.parent_id, a.level, a.currency, a.category
ORDER BY a.code ASC`, scope.TenantID, scope.CompanyID, from, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		var category string
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.ParentID, &b.Level, &b.Currency, &category,
			&b.OpeningDebits, &b.OpeningCredits, &b.PeriodDebits, &b.PeriodCredits); err != nil {
			return nil, err
		}
		b.Category = accounts.Category(category)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// CashMovements lists window movements on cash accounts, labelled by the
// counter account and classified by its category for the direct method.
func (r *repository) CashMovements(ctx context.Context, scope shared.Scope, from, asOf time.Time) ([]ClassifiedMovement, error) {
	rows, err := r.db.Query(ctx, `
SELECT counter.name,
       counter.account_type,
       COALESCE(counter.category, 'CURRENT'),
       SUM(cash_line.debit - cash_line.credit)
FROM journal_lines cash_line
JOIN chart_of_accounts cash_acc ON cash_acc.id = cash_line.account_id AND cash_acc.is_cash
JOIN journals j ON j.id = cash_line.journal_id AND j.status = 'posted'
JOIN journal_lines counter_line ON counter_line.journal_id = j.id AND counter_line.id <> cash_line.id
JOIN chart_of_accounts counter ON counter.id = counter_line.account_id
WHERE j.tenant_id = $1 AND j.company_id = $2 AND j.date >= $3 AND j.date <= $4
GROUP BY counter.name, counter.account_type, counter.category
ORDER BY counter.name ASC`, scope.TenantID, scope.CompanyID, from, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []ClassifiedMovement
	for rows.Next() {
		var m ClassifiedMovement
		var accType accounts.AccountType
		var category accounts.Category
		if err := rows.Scan(&m.Label, &accType, &category, &m.Amount); err != nil {
			return nil, err
		}
		m.Activity = classifyActivity(accType, category)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// classifyActivity maps the counter account's nature onto a cash-flow
// activity.
func classifyActivity(accType accounts.AccountType, category accounts.Category) Activity {
	switch accType {
	case accounts.TypeAsset:
		if category == accounts.CategoryNonCurrent {
			return ActivityInvesting
		}
		return ActivityOperating
	case accounts.TypeLiability:
		if category == accounts.CategoryNonCurrent {
			return ActivityFinancing
		}
		return ActivityOperating
	case accounts.TypeEquity:
		return ActivityFinancing
	default:
		return ActivityOperating
	}
}
