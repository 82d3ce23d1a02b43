package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/sha3"
)

// Fingerprint hashes a normalized posting input so an unchanged replay maps
// to the same key. The value must marshal deterministically; inputs are
// structs with ordered slices, never maps of amounts.
func Fingerprint(module string, input any) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	h := sha3.Sum256(append([]byte(module+"\x00"), payload...))
	return hex.EncodeToString(h[:]), nil
}

// IdempotencyStore persists processed keys and the journal each produced,
// letting a replayed posting return its original result instead of
// double-posting.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key raced this insert.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// LookupJournal returns the journal previously produced for the key, if any.
func (s *IdempotencyStore) LookupJournal(ctx context.Context, key, module string) (int64, bool, error) {
	if s == nil {
		return 0, false, errors.New("idempotency store not initialised")
	}
	var journalID int64
	err := s.pool.QueryRow(ctx, `SELECT journal_id FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&journalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return journalID, true, nil
}

// InsertTx records the key inside the posting transaction so the key and the
// journal commit or roll back together.
func InsertIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key, module string, journalID int64) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, journal_id, created_at) VALUES ($1, $2, $3, $4)`,
		key, module, journalID, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
