package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror keeps the last good rate per pair in Redis so a database
// outage does not blind the staleness advisor.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror constructs a mirror. A zero ttl keeps entries forever.
func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func mirrorKey(tenantID int64, base, quote string) string {
	return fmt.Sprintf("fx:last:%d:%s%s", tenantID, base, quote)
}

// SetLastGood stores the rate under its pair key.
func (m *RedisMirror) SetLastGood(ctx context.Context, rate Rate) error {
	payload, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, mirrorKey(rate.TenantID, rate.BaseCurrency, rate.QuoteCurrency), payload, m.ttl).Err()
}

// LastGood returns the mirrored rate, false when the pair has never been
// ingested.
func (m *RedisMirror) LastGood(ctx context.Context, tenantID int64, base, quote string) (Rate, bool, error) {
	payload, err := m.client.Get(ctx, mirrorKey(tenantID, base, quote)).Bytes()
	if err == redis.Nil {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	var rate Rate
	if err := json.Unmarshal(payload, &rate); err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}
