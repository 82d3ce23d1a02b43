package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/shared"
)

type fakeRepo struct {
	entries []Entry
}

func (f *fakeRepo) filter(filters Filters) []Entry {
	var out []Entry
	for _, e := range f.entries {
		if !filters.From.IsZero() && e.At.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && !e.At.Before(filters.To) {
			continue
		}
		if filters.ActorID != 0 && e.ActorID != filters.ActorID {
			continue
		}
		if filters.Entity != "" && e.Entity != filters.Entity {
			continue
		}
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (f *fakeRepo) Window(_ context.Context, _ shared.Scope, filters Filters, limit, offset int) ([]Entry, error) {
	matched := f.filter(filters)
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeRepo) All(_ context.Context, _ shared.Scope, filters Filters) ([]Entry, error) {
	return f.filter(filters), nil
}

func seededRepo(n int) *fakeRepo {
	repo := &fakeRepo{}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		repo.entries = append(repo.entries, Entry{
			ID:       int64(n - i),
			ActorID:  int64(1 + i%2),
			Action:   "journal.posted",
			Entity:   "journal",
			EntityID: "JRN-2026-000001",
			At:       base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return repo
}

func TestTimelinePaging(t *testing.T) {
	svc := NewService(seededRepo(25))
	scope := shared.Scope{TenantID: 1, CompanyID: 1}

	first, err := svc.Timeline(context.Background(), scope, Filters{})
	require.NoError(t, err)
	require.Len(t, first.Rows, 20)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 1, first.Paging.Page)

	second, err := svc.Timeline(context.Background(), scope, Filters{Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Rows, 5)
	require.False(t, second.Paging.HasNext)
}

func TestTimelineCapsPageSize(t *testing.T) {
	svc := NewService(seededRepo(120))
	result, err := svc.Timeline(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1}, Filters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
}

func TestTimelineActorFilter(t *testing.T) {
	svc := NewService(seededRepo(10))
	result, err := svc.Timeline(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1}, Filters{ActorID: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	for _, row := range result.Rows {
		require.EqualValues(t, 2, row.ActorID)
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService(seededRepo(3))
	data, err := svc.ExportCSV(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1}, Filters{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "occurred_at,actor_id,action,entity,entity_id", lines[0])
	require.Contains(t, lines[1], "journal.posted")
}

func TestTimelineWithoutRepository(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.Timeline(context.Background(), shared.Scope{TenantID: 1, CompanyID: 1}, Filters{})
	require.Error(t, err)
}
