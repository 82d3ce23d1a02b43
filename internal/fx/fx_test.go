package fx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/shared"
)

func TestStalenessBands(t *testing.T) {
	cfg := DefaultStalenessConfig()

	cases := []struct {
		age  time.Duration
		want Classification
	}{
		{30 * time.Minute, ClassFresh},
		{60 * time.Minute, ClassFresh},
		{120 * time.Minute, ClassWarning},
		{240 * time.Minute, ClassWarning},
		{300 * time.Minute, ClassAcceptable},
		{1440 * time.Minute, ClassAcceptable},
		{1500 * time.Minute, ClassStale},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cfg.Classify(tc.age), "age %s", tc.age)
	}

	require.False(t, ClassFresh.RequiresReview())
	require.False(t, ClassWarning.RequiresReview())
	require.False(t, ClassAcceptable.RequiresReview())
	require.True(t, ClassStale.RequiresReview())
}

func TestApplicableRate(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 8, d, 0, 0, 0, 0, time.UTC) }
	end := day(10)
	rates := []Rate{
		{ID: 1, Rate: decimal.NewFromFloat(4.1), ValidFrom: day(1), ValidTo: &end},
		{ID: 2, Rate: decimal.NewFromFloat(4.2), ValidFrom: day(10)},
		{ID: 3, Rate: decimal.NewFromFloat(4.3), ValidFrom: day(20)},
	}

	r, ok := ApplicableRate(rates, day(5))
	require.True(t, ok)
	require.Equal(t, int64(1), r.ID)

	// the old window closes exactly when the next opens
	r, ok = ApplicableRate(rates, day(10))
	require.True(t, ok)
	require.Equal(t, int64(2), r.ID)

	r, ok = ApplicableRate(rates, day(25))
	require.True(t, ok)
	require.Equal(t, int64(3), r.ID)

	_, ok = ApplicableRate(rates, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.False(t, ok)
}

func TestApplicableRateValidToIsInclusive(t *testing.T) {
	end := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	rates := []Rate{
		{ID: 1, Rate: decimal.NewFromFloat(4.1), ValidFrom: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), ValidTo: &end},
	}

	// A rate still applies on the day its window ends.
	r, ok := ApplicableRate(rates, end)
	require.True(t, ok)
	require.Equal(t, int64(1), r.ID)

	_, ok = ApplicableRate(rates, end.AddDate(0, 0, 1))
	require.False(t, ok)
}

type memoryStore struct {
	mu    sync.Mutex
	rates []Rate
	next  int64
}

func (s *memoryStore) Insert(ctx context.Context, rate Rate) (Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	rate.ID = s.next
	s.rates = append(s.rates, rate)
	return rate, nil
}

func (s *memoryStore) Latest(ctx context.Context, tenantID int64, base, quote string) (Rate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest Rate
	found := false
	for _, r := range s.rates {
		if r.TenantID != tenantID || r.BaseCurrency != base || r.QuoteCurrency != quote {
			continue
		}
		if !found || r.FetchedAt.After(latest.FetchedAt) {
			latest = r
			found = true
		}
	}
	return latest, found, nil
}

func (s *memoryStore) RatesFor(ctx context.Context, tenantID int64, base, quote string) ([]Rate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Rate
	for _, r := range s.rates {
		if r.TenantID == tenantID && r.BaseCurrency == base && r.QuoteCurrency == quote {
			out = append(out, r)
		}
	}
	return out, nil
}

// flakySource fails a fixed number of times before succeeding.
type flakySource struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
	value    decimal.Decimal
}

func (s *flakySource) Name() string { return s.name }

func (s *flakySource) FetchRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return decimal.Zero, errors.New("upstream unavailable")
	}
	return s.value, nil
}

func newIngestor(t *testing.T, store RateStore, sources ...SourceConfig) *Ingestor {
	t.Helper()
	ing, err := NewIngestor(sources, store, 4, slog.Default())
	require.NoError(t, err)
	t.Cleanup(ing.Release)
	return ing
}

func TestIngestPrimarySucceeds(t *testing.T) {
	store := &memoryStore{}
	primary := &flakySource{name: "ecb", value: decimal.NewFromFloat(4.2)}
	fallback := &flakySource{name: "backup", value: decimal.NewFromFloat(9.9)}
	ing := newIngestor(t, store,
		SourceConfig{Source: primary, Tier: TierPrimary, Retries: 1},
		SourceConfig{Source: fallback, Tier: TierFallback, Retries: 1},
	)

	rate, err := ing.IngestPair(context.Background(), 1, Pair{Base: "MYR", Quote: "USD"})
	require.NoError(t, err)
	require.Equal(t, "ecb", rate.Source)
	require.True(t, rate.Rate.Equal(decimal.NewFromFloat(4.2)))
	require.Equal(t, 0, fallback.calls)
}

func TestIngestRetriesBeforeFallingBack(t *testing.T) {
	store := &memoryStore{}
	// two retries means three attempts; the source recovers on the third
	primary := &flakySource{name: "ecb", failures: 2, value: decimal.NewFromFloat(4.2)}
	ing := newIngestor(t, store,
		SourceConfig{Source: primary, Tier: TierPrimary, Retries: 2},
	)

	rate, err := ing.IngestPair(context.Background(), 1, Pair{Base: "MYR", Quote: "USD"})
	require.NoError(t, err)
	require.Equal(t, 3, primary.calls)
	require.Equal(t, "ecb", rate.Source)
}

func TestIngestFallsBackAfterPrimaryExhausted(t *testing.T) {
	store := &memoryStore{}
	primary := &flakySource{name: "ecb", failures: 100}
	fallback := &flakySource{name: "backup", value: decimal.NewFromFloat(4.5)}
	ing := newIngestor(t, store,
		SourceConfig{Source: primary, Tier: TierPrimary, Retries: 1},
		SourceConfig{Source: fallback, Tier: TierFallback},
	)

	rate, err := ing.IngestPair(context.Background(), 1, Pair{Base: "MYR", Quote: "USD"})
	require.NoError(t, err)
	require.Equal(t, 2, primary.calls)
	require.Equal(t, "backup", rate.Source)
}

func TestIngestAllSourcesDownIsRetryable(t *testing.T) {
	store := &memoryStore{}
	primary := &flakySource{name: "ecb", failures: 100}
	ing := newIngestor(t, store,
		SourceConfig{Source: primary, Tier: TierPrimary, Retries: 1},
	)

	_, err := ing.IngestPair(context.Background(), 1, Pair{Base: "MYR", Quote: "USD"})
	require.True(t, shared.IsCode(err, shared.CodeFxSourceUnreachable))

	var coded *shared.Error
	require.True(t, errors.As(err, &coded))
	require.True(t, coded.Retryable)
}

func TestIngestAllRunsEveryPair(t *testing.T) {
	store := &memoryStore{}
	source := &flakySource{name: "ecb", value: decimal.NewFromFloat(4.2)}
	ing := newIngestor(t, store,
		SourceConfig{Source: source, Tier: TierPrimary},
	)

	pairs := []Pair{
		{Base: "MYR", Quote: "USD"},
		{Base: "MYR", Quote: "EUR"},
		{Base: "MYR", Quote: "SGD"},
	}
	errs := ing.IngestAll(context.Background(), 1, pairs)
	require.Empty(t, errs)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.rates, 3)
}

func TestAdvisorReviewRequired(t *testing.T) {
	store := &memoryStore{}
	now := time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)
	advisor := NewAdvisor(store, DefaultStalenessConfig(), "MYR", slog.Default()).
		WithNow(func() time.Time { return now })
	scope := shared.Scope{TenantID: 1, CompanyID: 1}

	// no rate at all counts as stale
	review, err := advisor.ReviewRequired(context.Background(), scope, "USD", now)
	require.NoError(t, err)
	require.True(t, review)

	// a rate inside the acceptable band passes untagged
	_, err = store.Insert(context.Background(), Rate{
		TenantID: 1, BaseCurrency: "MYR", QuoteCurrency: "USD",
		Rate: decimal.NewFromFloat(4.2), FetchedAt: now.Add(-5 * time.Hour),
	})
	require.NoError(t, err)
	review, err = advisor.ReviewRequired(context.Background(), scope, "USD", now)
	require.NoError(t, err)
	require.False(t, review)

	// beyond the acceptable bound the posting gets tagged
	advisorTight := NewAdvisor(store, StalenessConfig{
		FreshWithin:      time.Minute,
		WarningWithin:    2 * time.Minute,
		AcceptableWithin: 3 * time.Minute,
	}, "MYR", slog.Default()).WithNow(func() time.Time { return now })
	review, err = advisorTight.ReviewRequired(context.Background(), scope, "USD", now)
	require.NoError(t, err)
	require.True(t, review)
}

func TestRedisMirrorRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	mirror := NewRedisMirror(client, 0)

	rate := Rate{
		ID: 5, TenantID: 1, BaseCurrency: "MYR", QuoteCurrency: "USD",
		Rate: decimal.NewFromFloat(4.2), Source: "ecb",
		FetchedAt: time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC),
		ValidFrom: time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, mirror.SetLastGood(context.Background(), rate))

	got, found, err := mirror.LastGood(context.Background(), 1, "MYR", "USD")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ecb", got.Source)
	require.True(t, got.Rate.Equal(rate.Rate))

	_, found, err = mirror.LastGood(context.Background(), 1, "MYR", "EUR")
	require.NoError(t, err)
	require.False(t, found)
}
