package fx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/shared"
)

// Tier orders sources: every primary is exhausted before any fallback is
// tried.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// Source fetches one quote from an external rate provider.
type Source interface {
	Name() string
	FetchRate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// SourceConfig binds a source to its tier, per-attempt timeout and retry
// count.
type SourceConfig struct {
	Source  Source
	Tier    Tier
	Timeout time.Duration
	Retries int
}

// RateStore persists ingested rates.
type RateStore interface {
	Insert(ctx context.Context, rate Rate) (Rate, error)
	Latest(ctx context.Context, tenantID int64, base, quote string) (Rate, bool, error)
	RatesFor(ctx context.Context, tenantID int64, base, quote string) ([]Rate, error)
}

// Mirror keeps the last good rate in a fast store so the advisor can answer
// without hitting the database. A nil mirror is skipped.
type Mirror interface {
	SetLastGood(ctx context.Context, rate Rate) error
}

// Ingestor walks the configured sources in tier order and persists the
// first successful quote per pair.
type Ingestor struct {
	sources []SourceConfig
	store   RateStore
	mirror  Mirror
	pool    *ants.Pool
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestor constructs an Ingestor with a worker pool of the given size
// for bulk ingestion runs.
func NewIngestor(sources []SourceConfig, store RateStore, poolSize int, logger *slog.Logger) (*Ingestor, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Ingestor{
		sources: sources,
		store:   store,
		pool:    pool,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// WithMirror attaches the last-good mirror.
func (ing *Ingestor) WithMirror(m Mirror) *Ingestor {
	ing.mirror = m
	return ing
}

// WithNow overrides the clock, used by tests.
func (ing *Ingestor) WithNow(now func() time.Time) *Ingestor {
	ing.now = now
	return ing
}

// Release returns the worker pool resources.
func (ing *Ingestor) Release() {
	ing.pool.Release()
}

// IngestPair fetches one quote, trying primaries in order and falling back
// only after every primary has exhausted its retries. Failure of the whole
// chain is retryable: the caller decides whether to proceed on a stale rate
// or abort.
func (ing *Ingestor) IngestPair(ctx context.Context, tenantID int64, pair Pair) (Rate, error) {
	for _, tier := range []Tier{TierPrimary, TierFallback} {
		for _, cfg := range ing.sources {
			if cfg.Tier != tier {
				continue
			}
			value, err := ing.attempt(ctx, cfg, pair)
			if err != nil {
				ing.logger.Warn("fx source exhausted",
					slog.String("source", cfg.Source.Name()),
					slog.String("tier", string(cfg.Tier)),
					slog.String("pair", pair.Base+pair.Quote),
					slog.Any("error", err))
				continue
			}
			return ing.record(ctx, tenantID, pair, cfg.Source.Name(), value)
		}
	}
	return Rate{}, shared.Errorf(shared.CodeFxSourceUnreachable,
		"no source produced a rate for %s/%s", pair.Base, pair.Quote).AsRetryable()
}

// IngestAll fans pair ingestion out over the worker pool and reports the
// pairs that failed. A partial failure does not abort the run.
func (ing *Ingestor) IngestAll(ctx context.Context, tenantID int64, pairs []Pair) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, pair := range pairs {
		pair := pair
		wg.Add(1)
		if err := ing.pool.Submit(func() {
			defer wg.Done()
			if _, err := ing.IngestPair(ctx, tenantID, pair); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errs
}

// attempt runs one source through its retry budget with a per-attempt
// timeout.
func (ing *Ingestor) attempt(ctx context.Context, cfg SourceConfig, pair Pair) (decimal.Decimal, error) {
	attempts := cfg.Retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		attemptCtx := ctx
		cancel := func() {}
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		value, err := cfg.Source.FetchRate(attemptCtx, pair.Base, pair.Quote)
		cancel()
		if err == nil {
			return value, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
	}
	return decimal.Zero, lastErr
}

func (ing *Ingestor) record(ctx context.Context, tenantID int64, pair Pair, source string, value decimal.Decimal) (Rate, error) {
	now := ing.now()
	rate, err := ing.store.Insert(ctx, Rate{
		TenantID:      tenantID,
		BaseCurrency:  pair.Base,
		QuoteCurrency: pair.Quote,
		Rate:          value,
		Source:        source,
		ValidFrom:     now,
		FetchedAt:     now,
	})
	if err != nil {
		return Rate{}, err
	}
	if ing.mirror != nil {
		if err := ing.mirror.SetLastGood(ctx, rate); err != nil {
			ing.logger.Warn("mirror last good rate", slog.Any("error", err))
		}
	}
	ing.logger.Info("fx rate ingested",
		slog.String("source", source),
		slog.String("pair", pair.Base+pair.Quote),
		slog.String("rate", value.String()))
	return rate, nil
}
