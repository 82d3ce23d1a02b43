package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-books/meridian/internal/fx"
	jobmetrics "github.com/meridian-books/meridian/internal/jobs"
)

const (
	// TaskFxRefresh runs a scheduled sweep over the configured currency pairs.
	TaskFxRefresh = "fx:refresh"
)

// FxRefreshPayload identifies the tenant whose rates get refreshed.
type FxRefreshPayload struct {
	TenantID     int64     `json:"tenant_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewFxRefreshTask constructs the scheduled refresh task.
func NewFxRefreshTask(tenantID int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(FxRefreshPayload{TenantID: tenantID, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFxRefresh, body, asynq.Queue(QueueDefault)), nil
}

// NewFxRefreshHandler returns the handler that runs the ingestion sweep.
// Per-pair failures are logged and retried on the next schedule; the task
// itself only fails when every pair failed, so a single dead source does not
// poison the queue.
func NewFxRefreshHandler(ingestor *fx.Ingestor, pairs []fx.Pair, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload FxRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskFxRefresh)

		errs := ingestor.IngestAll(ctx, payload.TenantID, pairs)
		for _, err := range errs {
			logger.Warn("fx refresh pair failed", "tenant", payload.TenantID, "error", err)
		}
		if len(pairs) > 0 && len(errs) == len(pairs) {
			return tracker.End(errs[0])
		}
		return tracker.End(nil)
	}
}
