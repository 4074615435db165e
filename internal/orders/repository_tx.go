package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/orderpilot/orderpilot/internal/inventory"
	"github.com/orderpilot/orderpilot/internal/shared"
)

// TxRepository exposes the writes that must share one transaction: order rows,
// items, inventory movements, payments, shipments and the audit trail.
type TxRepository interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *OrderItem) error
	GetOrderForUpdate(ctx context.Context, id string) (*Order, error)

	// CompletePayment flips payment_status pending -> completed and writes the
	// payment_completed stage marker. It reports false when another
	// transaction already completed the payment.
	CompletePayment(ctx context.Context, orderID, method string) (bool, error)

	InsertPaymentTransaction(ctx context.Context, t *PaymentTransaction) error
	InsertShipment(ctx context.Context, s *Shipment) error
	MarkShipped(ctx context.Context, orderID string) error
	UpdateShipmentTracking(ctx context.Context, s *Shipment) error
	MarkDelivered(ctx context.Context, orderID string) error
	CancelOrder(ctx context.Context, orderID, reason string) error
	InsertRefundObligation(ctx context.Context, ro *RefundObligation) error

	Inventory() inventory.TxRepository
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepository struct {
	tx pgx.Tx
}

func newTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAuditTx(ctx, r.tx, log)
}

func (r *txRepository) InsertOrder(ctx context.Context, o *Order) error {
	shipAddr, err := marshalNullable(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	billAddr, err := marshalNullable(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("encode billing address: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, sales_rep_id, agent_id, order_date,
			required_date, status, workflow_type, workflow_stage, payment_status,
			priority, order_type, source, payment_terms, payment_method,
			subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
			currency, shipping_address, billing_address, special_instructions,
			created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $27
		)`,
		o.ID, o.OrderNumber, o.CustomerID, o.SalesRepID, o.AgentID, o.OrderDate,
		o.RequiredDate, o.Status, o.WorkflowType, o.WorkflowStage, o.PaymentStatus,
		o.Priority, o.OrderType, o.Source, o.PaymentTerms, o.PaymentMethod,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.ShippingAmount, o.TotalAmount,
		o.Currency, shipAddr, billAddr, o.SpecialInstructions,
		o.CreatedBy, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *txRepository) InsertItem(ctx context.Context, it *OrderItem) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO order_items (
			order_id, product_id, quantity, unit_price,
			discount_percent, tax_rate, notes, line_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.UnitPrice,
		it.DiscountPercent, it.TaxRate, it.Notes, it.LineOrder,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepository) CompletePayment(ctx context.Context, orderID, method string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'completed', payment_method = $1,
		    workflow_stage = $2, updated_at = now()
		WHERE id = $3 AND payment_status = 'pending'`,
		method, StagePaymentCompleted, orderID)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertPaymentTransaction(ctx context.Context, t *PaymentTransaction) error {
	resp, err := marshalNullable(t.GatewayResponse)
	if err != nil {
		return fmt.Errorf("encode gateway response: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO payment_transactions (
			id, transaction_number, order_id, customer_id, payment_method,
			gateway, gateway_transaction_id, amount, currency, status,
			processed_at, gateway_response, net_amount, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.TransactionNumber, t.OrderID, t.CustomerID, t.PaymentMethod,
		t.Gateway, t.GatewayTransactionID, t.Amount, t.Currency, t.Status,
		t.ProcessedAt, resp, t.NetAmount, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func (r *txRepository) InsertShipment(ctx context.Context, s *Shipment) error {
	dims, err := marshalNullable(s.Dimensions)
	if err != nil {
		return fmt.Errorf("encode dimensions: %w", err)
	}
	events, err := marshalNullable(s.TrackingEvents)
	if err != nil {
		return fmt.Errorf("encode tracking events: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO shipments (
			id, shipment_number, order_id, carrier, service_type,
			tracking_number, label_url, estimated_delivery, shipping_cost,
			weight, dimensions, status, tracking_events, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		s.ID, s.ShipmentNumber, s.OrderID, s.Carrier, s.ServiceType,
		s.TrackingNumber, s.LabelURL, s.EstimatedDelivery, s.ShippingCost,
		s.Weight, dims, s.Status, events, s.CreatedBy, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (r *txRepository) MarkShipped(ctx context.Context, orderID string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET status = 'shipped', workflow_stage = $1,
		    shipped_at = now(), updated_at = now()
		WHERE id = $2 AND status NOT IN ('cancelled', 'delivered')`,
		StageShipping, orderID)
	if err != nil {
		return fmt.Errorf("mark shipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderFinal
	}
	return nil
}

func (r *txRepository) UpdateShipmentTracking(ctx context.Context, s *Shipment) error {
	events, err := marshalNullable(s.TrackingEvents)
	if err != nil {
		return fmt.Errorf("encode tracking events: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		UPDATE shipments
		SET status = $1, tracking_events = $2, delivered_at = $3, updated_at = now()
		WHERE id = $4`,
		s.Status, events, s.DeliveredAt, s.ID)
	if err != nil {
		return fmt.Errorf("update shipment tracking: %w", err)
	}
	return nil
}

func (r *txRepository) MarkDelivered(ctx context.Context, orderID string) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET status = 'delivered', workflow_stage = $1,
		    delivered_at = now(), updated_at = now()
		WHERE id = $2 AND status <> 'cancelled'`,
		StageDelivered, orderID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *txRepository) CancelOrder(ctx context.Context, orderID, reason string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', workflow_stage = $1,
		    cancellation_reason = $2, cancelled_at = now(), updated_at = now()
		WHERE id = $3 AND status NOT IN ('cancelled', 'delivered')`,
		StageCancelled, reason, orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderFinal
	}
	return nil
}

func (r *txRepository) InsertRefundObligation(ctx context.Context, ro *RefundObligation) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO refund_obligations (
			id, order_id, transaction_id, amount, currency, reason, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ro.ID, ro.OrderID, ro.TransactionID, ro.Amount, ro.Currency,
		ro.Reason, ro.Status, ro.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund obligation: %w", err)
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case *Address:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
