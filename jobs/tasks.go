// Package jobs runs the background side of the order engine: carrier tracking
// refresh, the stalled-workflow sweep and idempotency key cleanup.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTrackingRefresh polls the carrier for every open shipment.
	TaskTrackingRefresh = "shipments:refresh_tracking"
	// TaskStalledSweep retries workflow advancement for parked orders.
	TaskStalledSweep = "orders:retry_stalled"
	// TaskIdempotencyCleanup expires old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// TrackingRefreshPayload narrows a refresh run to one tracking number; empty
// means every open shipment.
type TrackingRefreshPayload struct {
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// NewTrackingRefreshTask constructs the tracking refresh task.
func NewTrackingRefreshTask(payload TrackingRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrackingRefresh, data), nil
}

// NewStalledSweepTask constructs the stalled-order sweep task.
func NewStalledSweepTask() *asynq.Task {
	return asynq.NewTask(TaskStalledSweep, nil)
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

func decodePayload[T any](ctx context.Context, t *asynq.Task) (T, error) {
	var payload T
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
