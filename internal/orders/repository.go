package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderpilot/orderpilot/internal/platform/db"
)

// Repository is the persistence port for the orders domain. Writes that must
// be atomic with inventory movements run inside WithTx.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	GetOrder(ctx context.Context, id string) (*Order, error)
	GetShipmentByTracking(ctx context.Context, trackingNumber string) (*ShipmentWithOrder, error)
	ListStalledOrders(ctx context.Context, stages []Stage, olderThan time.Time) ([]Order, error)
	ListOpenShipments(ctx context.Context) ([]Shipment, error)

	// AdvanceStage moves an order from one stage to the next with a
	// compare-and-set on workflow_stage. It reports whether the row changed.
	AdvanceStage(ctx context.Context, id string, from, to Stage, status *Status) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

const orderColumns = `
	id, order_number, customer_id, sales_rep_id, agent_id, order_date,
	required_date, status, workflow_type, workflow_stage, payment_status,
	priority, order_type, source, payment_terms, payment_method,
	subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
	currency, shipping_address, billing_address, special_instructions,
	cancellation_reason, created_by, shipped_at, delivered_at, cancelled_at,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var shipAddr, billAddr []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.SalesRepID, &o.AgentID, &o.OrderDate,
		&o.RequiredDate, &o.Status, &o.WorkflowType, &o.WorkflowStage, &o.PaymentStatus,
		&o.Priority, &o.OrderType, &o.Source, &o.PaymentTerms, &o.PaymentMethod,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.ShippingAmount, &o.TotalAmount,
		&o.Currency, &shipAddr, &billAddr, &o.SpecialInstructions,
		&o.CancellationReason, &o.CreatedBy, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(shipAddr) > 0 {
		o.ShippingAddress = &Address{}
		if err := json.Unmarshal(shipAddr, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	if len(billAddr) > 0 {
		o.BillingAddress = &Address{}
		if err := json.Unmarshal(billAddr, o.BillingAddress); err != nil {
			return nil, fmt.Errorf("decode billing address: %w", err)
		}
	}
	return &o, nil
}

func (r *pgRepository) GetOrder(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, r.pool, id, "")
}

func getOrder(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, id, suffix string) (*Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1` + suffix
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	items, err := listItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func listItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price,
		       discount_percent, tax_rate, notes, line_order
		FROM order_items WHERE order_id = $1 ORDER BY line_order`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxRate, &it.Notes, &it.LineOrder); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const shipmentColumns = `
	id, shipment_number, order_id, carrier, service_type, tracking_number,
	label_url, estimated_delivery, shipping_cost, weight, dimensions,
	status, tracking_events, delivered_at, created_by, created_at, updated_at`

func scanShipment(row pgx.Row, s *Shipment) error {
	var dims, events []byte
	err := row.Scan(
		&s.ID, &s.ShipmentNumber, &s.OrderID, &s.Carrier, &s.ServiceType, &s.TrackingNumber,
		&s.LabelURL, &s.EstimatedDelivery, &s.ShippingCost, &s.Weight, &dims,
		&s.Status, &events, &s.DeliveredAt, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if len(dims) > 0 {
		if err := json.Unmarshal(dims, &s.Dimensions); err != nil {
			return fmt.Errorf("decode dimensions: %w", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &s.TrackingEvents); err != nil {
			return fmt.Errorf("decode tracking events: %w", err)
		}
	}
	return nil
}

func (r *pgRepository) GetShipmentByTracking(ctx context.Context, trackingNumber string) (*ShipmentWithOrder, error) {
	var out ShipmentWithOrder
	var dims, events []byte
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.shipment_number, s.order_id, s.carrier, s.service_type,
		       s.tracking_number, s.label_url, s.estimated_delivery,
		       s.shipping_cost, s.weight, s.dimensions, s.status,
		       s.tracking_events, s.delivered_at, s.created_by, s.created_at,
		       s.updated_at, o.order_number, COALESCE(c.name, '')
		FROM shipments s
		JOIN orders o ON o.id = s.order_id
		LEFT JOIN customers c ON c.id = o.customer_id
		WHERE s.tracking_number = $1`, trackingNumber).Scan(
		&out.ID, &out.ShipmentNumber, &out.OrderID, &out.Carrier, &out.ServiceType,
		&out.TrackingNumber, &out.LabelURL, &out.EstimatedDelivery,
		&out.ShippingCost, &out.Weight, &dims, &out.Status,
		&events, &out.DeliveredAt, &out.CreatedBy, &out.CreatedAt,
		&out.UpdatedAt, &out.OrderNumber, &out.CustomerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShipmentNotFound
		}
		return nil, fmt.Errorf("get shipment by tracking: %w", err)
	}
	if len(dims) > 0 {
		if err := json.Unmarshal(dims, &out.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &out.TrackingEvents); err != nil {
			return nil, fmt.Errorf("decode tracking events: %w", err)
		}
	}
	return &out, nil
}

func (r *pgRepository) ListStalledOrders(ctx context.Context, stages []Stage, olderThan time.Time) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+orderColumns+`
		FROM orders
		WHERE workflow_stage = ANY($1)
		  AND status NOT IN ('cancelled', 'delivered')
		  AND updated_at < $2
		ORDER BY updated_at
		LIMIT 100`, stageStrings(stages), olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stalled orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stalled order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListOpenShipments(ctx context.Context) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+shipmentColumns+`
		FROM shipments
		WHERE status <> 'delivered'
		ORDER BY created_at
		LIMIT 500`)
	if err != nil {
		return nil, fmt.Errorf("list open shipments: %w", err)
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		var s Shipment
		if err := scanShipment(rows, &s); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepository) AdvanceStage(ctx context.Context, id string, from, to Stage, status *Status) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if status != nil {
		tag, err = r.pool.Exec(ctx, `
			UPDATE orders SET workflow_stage = $1, status = $2, updated_at = now()
			WHERE id = $3 AND workflow_stage = $4`, to, *status, id, from)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE orders SET workflow_stage = $1, updated_at = now()
			WHERE id = $2 AND workflow_stage = $3`, to, id, from)
	}
	if err != nil {
		return false, fmt.Errorf("advance stage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func stageStrings(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
