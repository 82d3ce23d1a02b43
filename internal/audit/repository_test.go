package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/shared"
)

var entryColumns = []string{"id", "actor_id", "action", "entity", "entity_id", "meta", "occurred_at"}

func TestWindowScopesAndPages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PgRepository{db: mock}
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE tenant_id = \$1 AND company_id = \$2 ORDER BY occurred_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(int64(1), int64(2), 21, 0).
		WillReturnRows(pgxmock.NewRows(entryColumns).
			AddRow(int64(10), int64(7), "journal.posted", "journal", "JRN-2026-000010", map[string]any{"number": "JRN-2026-000010"}, at))

	entries, err := repo.Window(context.Background(), shared.Scope{TenantID: 1, CompanyID: 2}, Filters{}, 21, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "journal.posted", entries[0].Action)
	require.Equal(t, "JRN-2026-000010", entries[0].EntityID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWindowAppliesFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PgRepository{db: mock}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM audit_logs WHERE tenant_id = \$1 AND company_id = \$2 AND occurred_at >= \$3 AND entity = \$4 AND action = \$5`).
		WithArgs(int64(1), int64(1), from, "period", "period.closed", 21, 0).
		WillReturnRows(pgxmock.NewRows(entryColumns))

	_, err = repo.Window(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1},
		Filters{From: from, Entity: "period", Action: "period.closed"}, 21, 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllPropagatesQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PgRepository{db: mock}
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(`FROM audit_logs`).
		WithArgs(int64(1), int64(1)).
		WillReturnError(dbErr)

	_, err = repo.All(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1}, Filters{})
	require.ErrorIs(t, err, dbErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
