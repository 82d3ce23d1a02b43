package fx

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-books/meridian/internal/shared"
)

// Advisor answers rate and staleness questions for the posting paths. The
// subledgers consult it before tagging a foreign-currency posting for
// review.
type Advisor struct {
	store        RateStore
	cfg          StalenessConfig
	baseCurrency string
	logger       *slog.Logger
	now          func() time.Time
}

// NewAdvisor constructs an Advisor.
func NewAdvisor(store RateStore, cfg StalenessConfig, baseCurrency string, logger *slog.Logger) *Advisor {
	return &Advisor{
		store:        store,
		cfg:          cfg,
		baseCurrency: baseCurrency,
		logger:       logger,
		now:          time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (a *Advisor) WithNow(now func() time.Time) *Advisor {
	a.now = now
	return a
}

// Classify grades the freshness of the latest rate for the currency. A
// missing rate classifies as stale.
func (a *Advisor) Classify(ctx context.Context, tenantID int64, currency string) (Classification, Rate, error) {
	rate, found, err := a.store.Latest(ctx, tenantID, a.baseCurrency, currency)
	if err != nil {
		return "", Rate{}, err
	}
	if !found {
		return ClassStale, Rate{}, nil
	}
	return a.cfg.Classify(a.now().Sub(rate.FetchedAt)), rate, nil
}

// RateFor returns the rate governing the given date.
func (a *Advisor) RateFor(ctx context.Context, tenantID int64, currency string, date time.Time) (Rate, error) {
	rates, err := a.store.RatesFor(ctx, tenantID, a.baseCurrency, currency)
	if err != nil {
		return Rate{}, err
	}
	rate, ok := ApplicableRate(rates, date)
	if !ok {
		return Rate{}, shared.Errorf(shared.CodeNotFound,
			"no %s/%s rate applies on %s", a.baseCurrency, currency, date.Format("2006-01-02"))
	}
	return rate, nil
}

// ReviewRequired reports whether a posting in the currency must be tagged
// for review. Only a rate past the acceptable bound, or no rate at all,
// triggers the tag; warnings pass through untagged.
func (a *Advisor) ReviewRequired(ctx context.Context, scope shared.Scope, currency string, date time.Time) (bool, error) {
	class, rate, err := a.Classify(ctx, scope.TenantID, currency)
	if err != nil {
		return false, err
	}
	if class.RequiresReview() {
		a.logger.Warn("stale exchange rate in posting path",
			slog.String("currency", currency),
			slog.String("classification", string(class)),
			slog.Time("fetched_at", rate.FetchedAt))
		return true, nil
	}
	return false, nil
}
