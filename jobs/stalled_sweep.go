package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderpilot/orderpilot/internal/orders"
)

// RunStalledSweep retries workflow advancement for orders that have sat at an
// automatic stage longer than threshold. An advance that failed transiently
// (Redis blip, lost race) gets picked up here.
func RunStalledSweep(ctx context.Context, svc *orders.Service, logger *slog.Logger, threshold time.Duration) error {
	moved, err := svc.RetryStalled(ctx, threshold)
	if err != nil {
		return err
	}
	if moved > 0 {
		logger.Info("stalled sweep advanced orders", slog.Int("moved", moved))
	}
	return nil
}
