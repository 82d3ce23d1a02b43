// Package cache wires Redis-backed caches for the reporting layer.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-books/meridian/internal/ledger/reports"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// ReportCache is a Redis render cache for trial balances. Cache failures
// degrade to recomputation, never to an error on the report path.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewReportCache constructs a ReportCache.
func NewReportCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ReportCache {
	return &ReportCache{client: client, ttl: ttl, logger: logger}
}

func (c *ReportCache) key(k string) string {
	return "report:tb:" + k
}

// GetTrialBalance returns a cached trial balance when present.
func (c *ReportCache) GetTrialBalance(ctx context.Context, key string) (reports.TrialBalance, bool) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return reports.TrialBalance{}, false
	}
	if err != nil {
		c.logger.Warn("report cache get", slog.Any("error", err))
		return reports.TrialBalance{}, false
	}
	var tb reports.TrialBalance
	if err := json.Unmarshal(payload, &tb); err != nil {
		c.logger.Warn("report cache decode", slog.Any("error", err))
		return reports.TrialBalance{}, false
	}
	return tb, true
}

// SetTrialBalance stores a rendered trial balance.
func (c *ReportCache) SetTrialBalance(ctx context.Context, key string, tb reports.TrialBalance) {
	payload, err := json.Marshal(tb)
	if err != nil {
		c.logger.Warn("report cache encode", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, c.key(key), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("report cache set", slog.Any("error", err))
	}
}
