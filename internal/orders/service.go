package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderpilot/orderpilot/internal/carrier"
	"github.com/orderpilot/orderpilot/internal/inventory"
	"github.com/orderpilot/orderpilot/internal/observability"
	"github.com/orderpilot/orderpilot/internal/payments"
	"github.com/orderpilot/orderpilot/internal/shared"
)

// NumberSource hands out date-scoped document numbers.
type NumberSource interface {
	Next(ctx context.Context, prefix string, date time.Time) (string, error)
}

// IdempotencyGuard deduplicates retried mutations by caller-supplied key.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Auditor records audit entries outside a repository transaction.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceParams wires the service's collaborators.
type ServiceParams struct {
	Repo    Repository
	Seq     NumberSource
	Gateway payments.Gateway
	Labels  carrier.LabelAPI
	Tracker carrier.TrackingAPI
	Idem    IdempotencyGuard
	Audit   Auditor
	Cache   *Cache
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Service owns all order mutations. Every lifecycle transition funnels through
// it: creation, workflow advancement, payment, shipping and cancellation.
type Service struct {
	repo    Repository
	seq     NumberSource
	gateway payments.Gateway
	labels  carrier.LabelAPI
	tracker carrier.TrackingAPI
	idem    IdempotencyGuard
	audit   Auditor
	cache   *Cache
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the order service.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    p.Repo,
		seq:     p.Seq,
		gateway: p.Gateway,
		labels:  p.Labels,
		tracker: p.Tracker,
		idem:    p.Idem,
		audit:   p.Audit,
		cache:   p.Cache,
		metrics: p.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateOrder validates the request, reserves inventory for every line and
// persists the order atomically, then runs the workflow forward through its
// automatic stages.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, actorID int64) (*Order, error) {
	applyCreateDefaults(&req)
	if err := reconcileTotals(req); err != nil {
		return nil, err
	}

	now := s.now()
	number, err := s.seq.Next(ctx, shared.SeqPrefixOrder, now)
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}

	order := &Order{
		ID:                  uuid.NewString(),
		OrderNumber:         number,
		CustomerID:          req.CustomerID,
		SalesRepID:          req.SalesRepID,
		AgentID:             req.AgentID,
		OrderDate:           now,
		RequiredDate:        req.RequiredDate,
		Status:              StatusDraft,
		WorkflowType:        req.WorkflowType,
		WorkflowStage:       StageCreated,
		PaymentStatus:       PaymentPending,
		Priority:            req.Priority,
		OrderType:           req.OrderType,
		Source:              req.Source,
		PaymentTerms:        req.PaymentTerms,
		PaymentMethod:       req.PaymentMethod,
		Subtotal:            req.Subtotal,
		DiscountAmount:      req.DiscountAmount,
		TaxAmount:           req.TaxAmount,
		ShippingAmount:      req.ShippingAmount,
		TotalAmount:         req.TotalAmount,
		Currency:            req.Currency,
		ShippingAddress:     req.ShippingAddress,
		BillingAddress:      req.BillingAddress,
		SpecialInstructions: req.SpecialInstructions,
		CreatedBy:           actorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	reservations := make([]inventory.ItemReservation, 0, len(req.Items))
	for i, in := range req.Items {
		order.Items = append(order.Items, OrderItem{
			OrderID:         order.ID,
			ProductID:       in.ProductID,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxRate:         in.TaxRate,
			Notes:           in.Notes,
			LineOrder:       i + 1,
		})
		reservations = append(reservations, inventory.ItemReservation{
			ProductID: in.ProductID,
			Quantity:  float64(in.Quantity),
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := range order.Items {
			if err := tx.InsertItem(ctx, &order.Items[i]); err != nil {
				return err
			}
		}
		if err := inventory.ReserveForOrder(ctx, tx.Inventory(), order.ID, reservations); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:   actorID,
			Operation: "CREATE",
			Entity:    "order",
			EntityID:  order.ID,
			After:     order,
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}

	order, advErr := s.advance(ctx, order)
	if advErr != nil {
		s.logger.Warn("workflow advance stalled after create",
			"order_id", order.ID, "stage", order.WorkflowStage, "error", advErr)
		if s.metrics != nil {
			s.metrics.WorkflowStalls.Inc()
		}
	}
	s.cacheSet(ctx, order)
	return order, nil
}

// ProcessPayment charges the gateway for the full order total and records the
// transaction. The amount must match the order total to the cent.
func (s *Service) ProcessPayment(ctx context.Context, orderID string, req ProcessPaymentRequest, actorID int64) (*PaymentTransaction, error) {
	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, req.IdempotencyKey, "payments"); err != nil {
			return nil, err
		}
	}
	txn, err := s.processPayment(ctx, orderID, req, actorID)
	if err != nil {
		// A failed attempt must stay retryable under the same key.
		if req.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, req.IdempotencyKey); delErr != nil {
				s.logger.Error("release idempotency key",
					"key", req.IdempotencyKey, "error", delErr)
			}
		}
		if s.metrics != nil {
			s.metrics.PaymentsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PaymentsTotal.WithLabelValues("completed").Inc()
	}
	return txn, nil
}

func (s *Service) processPayment(ctx context.Context, orderID string, req ProcessPaymentRequest, actorID int64) (*PaymentTransaction, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == PaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if !order.Status.IsPayable() {
		return nil, fmt.Errorf("%w: status %s", ErrNotPayable, order.Status)
	}
	if req.Currency != "" && req.Currency != order.Currency {
		return nil, fmt.Errorf("%w: currency %s, order is in %s", ErrAmountMismatch, req.Currency, order.Currency)
	}
	if cents(req.Amount) != cents(order.TotalAmount) {
		return nil, fmt.Errorf("%w: tendered %.2f, order total %.2f", ErrAmountMismatch, req.Amount, order.TotalAmount)
	}

	// The gateway call happens before the transaction opens so a slow gateway
	// never holds row locks.
	charge, err := s.gateway.Charge(ctx, payments.ChargeRequest{
		Amount:     req.Amount,
		Currency:   order.Currency,
		Method:     req.PaymentMethod,
		CardNumber: req.CardNumber,
		CardExpiry: req.CardExpiry,
		CardCVV:    req.CardCVV,
		Reference:  order.OrderNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("charge order %s: %w", order.OrderNumber, err)
	}

	now := s.now()
	number, err := s.seq.Next(ctx, shared.SeqPrefixTransaction, now)
	if err != nil {
		return nil, fmt.Errorf("transaction number: %w", err)
	}
	gatewayName := req.Gateway
	if gatewayName == "" {
		gatewayName = "default"
	}
	txn := &PaymentTransaction{
		ID:                   uuid.NewString(),
		TransactionNumber:    number,
		OrderID:              order.ID,
		CustomerID:           order.CustomerID,
		PaymentMethod:        req.PaymentMethod,
		Gateway:              gatewayName,
		GatewayTransactionID: charge.GatewayTransactionID,
		Amount:               req.Amount,
		Currency:             order.Currency,
		Status:               "completed",
		ProcessedAt:          now,
		GatewayResponse:      charge.Response,
		NetAmount:            round2(req.Amount - charge.Fees),
		CreatedBy:            actorID,
		CreatedAt:            now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fresh, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if !fresh.Status.IsPayable() {
			return fmt.Errorf("%w: status %s", ErrNotPayable, fresh.Status)
		}
		done, err := tx.CompletePayment(ctx, order.ID, req.PaymentMethod)
		if err != nil {
			return err
		}
		if !done {
			return ErrAlreadyPaid
		}
		if err := tx.InsertPaymentTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:   actorID,
			Operation: "PAYMENT",
			Entity:    "order",
			EntityID:  order.ID,
			Before:    map[string]any{"payment_status": PaymentPending},
			After:     txn,
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.cacheInvalidate(ctx, order.ID)
	return txn, nil
}

// CreateShippingLabel issues a carrier label for a fully paid order and moves
// it to shipped.
func (s *Service) CreateShippingLabel(ctx context.Context, orderID string, req CreateShipmentRequest, actorID int64) (*Shipment, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsFinal() {
		return nil, ErrOrderFinal
	}
	if order.PaymentStatus != PaymentCompleted {
		return nil, ErrPaymentRequired
	}

	label, err := s.labels.CreateLabel(ctx, carrier.LabelRequest{
		Carrier:         req.Carrier,
		ServiceType:     req.ServiceType,
		Reference:       order.OrderNumber,
		Weight:          req.Weight,
		Dimensions:      req.Dimensions,
		ShippingAddress: addressMap(order.ShippingAddress),
	})
	if err != nil {
		return nil, fmt.Errorf("create label for order %s: %w", order.OrderNumber, err)
	}

	now := s.now()
	number, err := s.seq.Next(ctx, shared.SeqPrefixShipment, now)
	if err != nil {
		return nil, fmt.Errorf("shipment number: %w", err)
	}
	shipment := &Shipment{
		ID:                uuid.NewString(),
		ShipmentNumber:    number,
		OrderID:           order.ID,
		Carrier:           req.Carrier,
		ServiceType:       req.ServiceType,
		TrackingNumber:    label.TrackingNumber,
		LabelURL:          label.LabelURL,
		EstimatedDelivery: label.EstimatedDelivery,
		ShippingCost:      req.ShippingCost,
		Weight:            req.Weight,
		Dimensions:        req.Dimensions,
		Status:            carrier.StatusLabelCreated,
		CreatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fresh, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if fresh.PaymentStatus != PaymentCompleted {
			return ErrPaymentRequired
		}
		if err := tx.InsertShipment(ctx, shipment); err != nil {
			return err
		}
		if err := tx.MarkShipped(ctx, order.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:   actorID,
			Operation: "SHIP",
			Entity:    "order",
			EntityID:  order.ID,
			Before:    map[string]any{"status": fresh.Status, "workflow_stage": fresh.WorkflowStage},
			After:     shipment,
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ShipmentsTotal.WithLabelValues(carrier.StatusLabelCreated).Inc()
	}
	s.cacheInvalidate(ctx, order.ID)
	return shipment, nil
}

// TrackShipment polls the carrier and folds the latest state into the
// shipment. Re-polling an unchanged shipment is a no-op, so the operation is
// safe to call from both the API and the refresh job.
func (s *Service) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingResponse, error) {
	sw, err := s.repo.GetShipmentByTracking(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	info, err := s.tracker.Track(ctx, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", trackingNumber, err)
	}

	if info.Status != sw.Status {
		delivered := info.Status == carrier.StatusDelivered
		now := s.now()
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sw.Status = info.Status
			sw.TrackingEvents = info.Events
			if delivered {
				sw.DeliveredAt = &now
			}
			if err := tx.UpdateShipmentTracking(ctx, &sw.Shipment); err != nil {
				return err
			}
			if !delivered {
				return nil
			}
			if err := tx.MarkDelivered(ctx, sw.OrderID); err != nil {
				return err
			}
			return tx.RecordAudit(ctx, shared.AuditLog{
				Operation: "DELIVER",
				Entity:    "order",
				EntityID:  sw.OrderID,
				After:     map[string]any{"status": StatusDelivered, "tracking_number": trackingNumber},
				At:        now,
			})
		})
		if err != nil {
			return nil, err
		}
		if delivered {
			if s.metrics != nil {
				s.metrics.ShipmentsTotal.WithLabelValues(carrier.StatusDelivered).Inc()
			}
			// delivered -> completed is an auto hop
			if order, err := s.repo.GetOrder(ctx, sw.OrderID); err == nil {
				if _, err := s.advance(ctx, order); err != nil {
					s.logger.Warn("advance after delivery", "order_id", sw.OrderID, "error", err)
				}
			}
		}
		s.cacheInvalidate(ctx, sw.OrderID)
	}

	resp := &TrackingResponse{
		TrackingNumber:    trackingNumber,
		Status:            info.Status,
		EstimatedDelivery: sw.EstimatedDelivery,
		OrderNumber:       sw.OrderNumber,
		CustomerName:      sw.CustomerName,
	}
	for _, ev := range info.Events {
		resp.Events = append(resp.Events, carrierEvent{
			Status:      ev.Status,
			Description: ev.Description,
			Location:    ev.Location,
			Timestamp:   ev.Timestamp,
		})
	}
	return resp, nil
}

// CompleteStage acknowledges a manual workflow stage and advances the order
// through any automatic stages that follow.
func (s *Service) CompleteStage(ctx context.Context, orderID string, stage Stage, actorID int64) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsFinal() {
		return nil, ErrOrderFinal
	}
	if order.WorkflowStage != stage {
		return nil, fmt.Errorf("%w: at %s, got signal for %s", ErrStageConflict, order.WorkflowStage, stage)
	}
	def, ok := StageLookup(order.WorkflowType, stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not part of the %s workflow", ErrStageConflict, stage, order.WorkflowType)
	}
	if def.Auto {
		return nil, fmt.Errorf("%w: %s", ErrNotManualStage, stage)
	}

	var status *Status
	if st, ok := StatusForStage(def.Next); ok {
		status = &st
	}
	moved, err := s.repo.AdvanceStage(ctx, order.ID, stage, def.Next, status)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: concurrent transition", ErrStageConflict)
	}
	order.WorkflowStage = def.Next
	if status != nil {
		order.Status = *status
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:   actorID,
			Operation: "STAGE_COMPLETE",
			Entity:    "order",
			EntityID:  order.ID,
			Before:    map[string]any{"workflow_stage": stage},
			After:     map[string]any{"workflow_stage": order.WorkflowStage},
			At:        s.now(),
		}); err != nil {
			s.logger.Error("audit stage completion", "order_id", order.ID, "error", err)
		}
	}

	order, advErr := s.advance(ctx, order)
	if advErr != nil {
		s.logger.Warn("workflow advance stalled after signal",
			"order_id", order.ID, "stage", order.WorkflowStage, "error", advErr)
		if s.metrics != nil {
			s.metrics.WorkflowStalls.Inc()
		}
	}
	s.cacheSet(ctx, order)
	return order, nil
}

// CancelOrder cancels a non-final order, releases its inventory reservations
// and, when the order was already paid, opens a refund obligation.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string, actorID int64) (*Order, error) {
	var cancelled *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fresh, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if fresh.Status.IsFinal() {
			return ErrOrderFinal
		}
		if err := inventory.ReleaseForOrder(ctx, tx.Inventory(), orderID); err != nil {
			return err
		}
		now := s.now()
		if fresh.PaymentStatus == PaymentCompleted {
			ro := &RefundObligation{
				ID:        uuid.NewString(),
				OrderID:   fresh.ID,
				Amount:    fresh.TotalAmount,
				Currency:  fresh.Currency,
				Reason:    reason,
				Status:    RefundOpen,
				CreatedAt: now,
			}
			if err := tx.InsertRefundObligation(ctx, ro); err != nil {
				return err
			}
		}
		if err := tx.CancelOrder(ctx, orderID, reason); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:   actorID,
			Operation: "CANCEL",
			Entity:    "order",
			EntityID:  fresh.ID,
			Before:    map[string]any{"status": fresh.Status, "workflow_stage": fresh.WorkflowStage},
			After:     map[string]any{"status": StatusCancelled, "reason": reason},
			At:        now,
		}); err != nil {
			return err
		}
		fresh.Status = StatusCancelled
		fresh.WorkflowStage = StageCancelled
		fresh.CancellationReason = &reason
		fresh.CancelledAt = &now
		cancelled = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cacheInvalidate(ctx, orderID)
	return cancelled, nil
}

// GetOrder serves reads through the cache, falling back to Postgres.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("order cache read", "order_id", id, "error", err)
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, order)
	return order, nil
}

// RetryStalled re-runs advancement for orders that have sat at an automatic
// stage longer than olderThan. It returns how many orders moved.
func (s *Service) RetryStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stalled, err := s.repo.ListStalledOrders(ctx, AutoStages(), cutoff)
	if err != nil {
		return 0, err
	}
	moved := 0
	for i := range stalled {
		before := stalled[i].WorkflowStage
		after, err := s.advance(ctx, &stalled[i])
		if err != nil {
			s.logger.Warn("retry stalled order", "order_id", stalled[i].ID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.StalledSweepRetry.Inc()
		}
		if after.WorkflowStage != before {
			s.cacheInvalidate(ctx, after.ID)
			moved++
		}
	}
	return moved, nil
}

// OpenShipments lists shipments that have not reached delivered yet.
func (s *Service) OpenShipments(ctx context.Context) ([]Shipment, error) {
	return s.repo.ListOpenShipments(ctx)
}

// advance walks the order forward while its current stage is automatic. Each
// hop is a compare-and-set on workflow_stage, so concurrent advancers
// serialize per order: a lost race reloads and either follows the winner or
// leaves the order to the stalled sweep.
func (s *Service) advance(ctx context.Context, o *Order) (*Order, error) {
	for {
		def, ok := StageLookup(o.WorkflowType, o.WorkflowStage)
		if !ok || !def.Auto {
			return o, nil
		}
		var status *Status
		if st, ok := StatusForStage(def.Next); ok {
			status = &st
		}
		moved, err := s.repo.AdvanceStage(ctx, o.ID, o.WorkflowStage, def.Next, status)
		if err != nil {
			return o, err
		}
		if !moved {
			fresh, err := s.repo.GetOrder(ctx, o.ID)
			if err != nil {
				return o, err
			}
			if fresh.WorkflowStage == o.WorkflowStage {
				return fresh, nil
			}
			o = fresh
			continue
		}
		o.WorkflowStage = def.Next
		if status != nil {
			o.Status = *status
		}
	}
}

func (s *Service) cacheSet(ctx context.Context, o *Order) {
	if err := s.cache.Set(ctx, o); err != nil {
		s.logger.Warn("order cache write", "order_id", o.ID, "error", err)
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("order cache invalidate", "order_id", id, "error", err)
	}
}

func applyCreateDefaults(req *CreateOrderRequest) {
	if req.WorkflowType == "" {
		req.WorkflowType = WorkflowStandard
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if req.OrderType == "" {
		req.OrderType = OrderTypeSales
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
}

// reconcileTotals recomputes the subtotal from the items and checks the
// submitted breakdown adds up to the total, comparing in cents.
func reconcileTotals(req CreateOrderRequest) error {
	var sub float64
	for _, it := range req.Items {
		line := OrderItem{
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
		}
		sub += line.LineSubtotal()
	}
	if cents(sub) != cents(req.Subtotal) {
		return fmt.Errorf("%w: items sum to %.2f, subtotal is %.2f", ErrTotalsMismatch, sub, req.Subtotal)
	}
	total := req.Subtotal - req.DiscountAmount + req.TaxAmount + req.ShippingAmount
	if cents(total) != cents(req.TotalAmount) {
		return fmt.Errorf("%w: breakdown sums to %.2f, total is %.2f", ErrTotalsMismatch, total, req.TotalAmount)
	}
	if !ValidWorkflowType(req.WorkflowType) {
		return fmt.Errorf("unknown workflow type %q", req.WorkflowType)
	}
	return nil
}

func addressMap(a *Address) map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"line1":       a.Line1,
		"line2":       a.Line2,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	}
}
