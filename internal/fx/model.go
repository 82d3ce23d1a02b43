// Package fx ingests exchange rates from external sources and classifies
// their staleness. The classification drives posting policy: stale rates do
// not block a posting, they tag it for review.
package fx

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Rate is one ingested exchange rate quote. The validity window starts at
// ValidFrom; a nil ValidTo means the rate is open-ended until superseded.
type Rate struct {
	ID            int64
	TenantID      int64
	BaseCurrency  string
	QuoteCurrency string
	Rate          decimal.Decimal
	Source        string
	ValidFrom     time.Time
	ValidTo       *time.Time
	FetchedAt     time.Time
	CreatedAt     time.Time
}

// Pair names a base/quote currency pair to ingest.
type Pair struct {
	Base  string
	Quote string
}

// ApplicableRate selects the rate governing the given date: the latest
// ValidFrom at or before the date whose window has not ended. ValidTo is
// inclusive; on a handover day the newer rate wins via the sort below.
// Returns false when no rate applies.
func ApplicableRate(rates []Rate, date time.Time) (Rate, bool) {
	candidates := make([]Rate, 0, len(rates))
	for _, r := range rates {
		if r.ValidFrom.After(date) {
			continue
		}
		if r.ValidTo != nil && date.After(*r.ValidTo) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return Rate{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ValidFrom.After(candidates[j].ValidFrom)
	})
	return candidates[0], true
}
