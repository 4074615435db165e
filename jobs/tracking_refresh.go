package jobs

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/orderpilot/orderpilot/internal/orders"
)

// RunTrackingRefresh polls the carrier for every open shipment with bounded
// concurrency. A failure on one shipment is logged and does not stop the rest
// of the batch.
func RunTrackingRefresh(ctx context.Context, svc *orders.Service, logger *slog.Logger, concurrency int) error {
	shipments, err := svc.OpenShipments(ctx)
	if err != nil {
		return err
	}
	if len(shipments) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, sh := range shipments {
		trackingNumber := sh.TrackingNumber
		g.Go(func() error {
			if _, err := svc.TrackShipment(ctx, trackingNumber); err != nil {
				logger.Warn("tracking refresh",
					slog.String("tracking_number", trackingNumber), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tracking refresh complete", slog.Int("shipments", len(shipments)))
	return nil
}
