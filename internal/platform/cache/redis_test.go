package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger/reports"
)

func TestReportCacheRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	cache := NewReportCache(client, time.Minute, slog.Default())

	tb := reports.TrialBalance{
		Currency:     "MYR",
		TotalDebits:  decimal.NewFromInt(1100),
		TotalCredits: decimal.NewFromInt(1100),
		IsBalanced:   true,
		Difference:   decimal.Zero,
	}
	cache.SetTrialBalance(context.Background(), "k1", tb)

	got, ok := cache.GetTrialBalance(context.Background(), "k1")
	require.True(t, ok)
	require.True(t, got.IsBalanced)
	require.True(t, got.TotalDebits.Equal(tb.TotalDebits))

	_, ok = cache.GetTrialBalance(context.Background(), "missing")
	require.False(t, ok)
}

func TestReportCacheExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	cache := NewReportCache(client, time.Second, slog.Default())

	cache.SetTrialBalance(context.Background(), "k1", reports.TrialBalance{Currency: "MYR"})
	srv.FastForward(2 * time.Second)

	_, ok := cache.GetTrialBalance(context.Background(), "k1")
	require.False(t, ok)
}
