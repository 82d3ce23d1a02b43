package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-books/meridian/internal/jobs"
)

const (
	// TaskIdempotencyCleanup prunes expired posting idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// DefaultIdempotencyRetention keeps keys long enough for any client
	// retry storm to settle before the same key could be reused.
	DefaultIdempotencyRetention = 30 * 24 * time.Hour
)

// IdempotencyCleanupPayload carries the retention override, zero means the
// default.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupHandler returns the handler pruning old keys.
func NewIdempotencyCleanupHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskIdempotencyCleanup)
		retention := payload.Retention
		if retention <= 0 {
			retention = DefaultIdempotencyRetention
		}

		tag, err := pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`,
			time.Now().Add(-retention))
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("idempotency keys pruned",
			"removed", tag.RowsAffected(),
			"retention", retention.String(),
		)
		return tracker.End(nil)
	}
}
