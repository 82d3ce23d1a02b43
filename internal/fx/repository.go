package fx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRateStore persists rates in fx_rates.
type PgRateStore struct {
	pool *pgxpool.Pool
}

// NewRateStore constructs a PgRateStore.
func NewRateStore(pool *pgxpool.Pool) *PgRateStore {
	return &PgRateStore{pool: pool}
}

const rateColumns = `id, tenant_id, base_currency, quote_currency, rate, source, valid_from, valid_to, fetched_at, created_at`

func scanRate(row pgx.Row) (Rate, error) {
	var r Rate
	err := row.Scan(&r.ID, &r.TenantID, &r.BaseCurrency, &r.QuoteCurrency, &r.Rate,
		&r.Source, &r.ValidFrom, &r.ValidTo, &r.FetchedAt, &r.CreatedAt)
	return r, err
}

// Insert stores the rate and closes the previous open-ended window for the
// same pair in one transaction.
func (s *PgRateStore) Insert(ctx context.Context, rate Rate) (Rate, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Rate{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `UPDATE fx_rates SET valid_to=$4
WHERE tenant_id=$1 AND base_currency=$2 AND quote_currency=$3 AND valid_to IS NULL`,
		rate.TenantID, rate.BaseCurrency, rate.QuoteCurrency, rate.ValidFrom)
	if err != nil {
		return Rate{}, err
	}

	row := tx.QueryRow(ctx, `INSERT INTO fx_rates
(tenant_id, base_currency, quote_currency, rate, source, valid_from, valid_to, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+rateColumns, rate.TenantID, rate.BaseCurrency, rate.QuoteCurrency, rate.Rate,
		rate.Source, rate.ValidFrom, rate.ValidTo, rate.FetchedAt)
	inserted, err := scanRate(row)
	if err != nil {
		return Rate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Rate{}, err
	}
	return inserted, nil
}

// Latest returns the most recently fetched rate for the pair.
func (s *PgRateStore) Latest(ctx context.Context, tenantID int64, base, quote string) (Rate, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rateColumns+` FROM fx_rates
WHERE tenant_id=$1 AND base_currency=$2 AND quote_currency=$3
ORDER BY fetched_at DESC LIMIT 1`, tenantID, base, quote)
	rate, err := scanRate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}

// RatesFor returns all rates for the pair, newest first.
func (s *PgRateStore) RatesFor(ctx context.Context, tenantID int64, base, quote string) ([]Rate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rateColumns+` FROM fx_rates
WHERE tenant_id=$1 AND base_currency=$2 AND quote_currency=$3
ORDER BY valid_from DESC`, tenantID, base, quote)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
