package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/shared"
)

// Repository reads the audit trail.
type Repository interface {
	Window(ctx context.Context, scope shared.Scope, filters Filters, limit, offset int) ([]Entry, error)
	All(ctx context.Context, scope shared.Scope, filters Filters) ([]Entry, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgRepository queries audit_logs.
type PgRepository struct {
	db querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func buildQuery(scope shared.Scope, filters Filters) (string, []any) {
	var where []string
	args := []any{scope.TenantID, scope.CompanyID}
	where = append(where, "tenant_id = $1", "company_id = $2")

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To)
	}
	if filters.ActorID != 0 {
		add("actor_id = $%d", filters.ActorID)
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		add("entity = $%d", entity)
	}
	if entityID := strings.TrimSpace(filters.EntityID); entityID != "" {
		add("entity_id = $%d", entityID)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		add("action = $%d", action)
	}

	query := `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, id DESC`
	return query, args
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Window returns one page of the timeline, newest first.
func (r *PgRepository) Window(ctx context.Context, scope shared.Scope, filters Filters, limit, offset int) ([]Entry, error) {
	query, args := buildQuery(scope, filters)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// All returns the whole filtered timeline, used by exports.
func (r *PgRepository) All(ctx context.Context, scope shared.Scope, filters Filters) ([]Entry, error) {
	query, args := buildQuery(scope, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}
