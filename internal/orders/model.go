// Package orders implements the order fulfilment engine: order creation with
// inventory reservation, the staged workflow, payment capture, shipping label
// issuance and carrier tracking.
package orders

import (
	"math"
	"time"

	"github.com/orderpilot/orderpilot/internal/carrier"
)

// Status is the coarse order lifecycle, distinct from the finer-grained
// workflow stage.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// IsPayable reports whether a payment may be taken in this status.
func (s Status) IsPayable() bool {
	return s == StatusConfirmed || s == StatusProcessing
}

// IsFinal reports whether the order can no longer be cancelled.
func (s Status) IsFinal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// PaymentStatus tracks the payment side of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Priority of an order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// OrderType distinguishes sales from returns and exchanges.
type OrderType string

const (
	OrderTypeSales    OrderType = "sales"
	OrderTypeReturn   OrderType = "return"
	OrderTypeExchange OrderType = "exchange"
)

// Address is a structured postal address, stored as JSONB.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is the aggregate root. The row in the orders table is the single
// source of truth for lifecycle status and workflow stage.
type Order struct {
	ID                  string        `json:"id" db:"id"`
	OrderNumber         string        `json:"order_number" db:"order_number"`
	CustomerID          string        `json:"customer_id" db:"customer_id"`
	SalesRepID          *string       `json:"sales_rep_id,omitempty" db:"sales_rep_id"`
	AgentID             *string       `json:"agent_id,omitempty" db:"agent_id"`
	OrderDate           time.Time     `json:"order_date" db:"order_date"`
	RequiredDate        *time.Time    `json:"required_date,omitempty" db:"required_date"`
	Status              Status        `json:"status" db:"status"`
	WorkflowType        WorkflowType  `json:"workflow_type" db:"workflow_type"`
	WorkflowStage       Stage         `json:"workflow_stage" db:"workflow_stage"`
	PaymentStatus       PaymentStatus `json:"payment_status" db:"payment_status"`
	Priority            Priority      `json:"priority" db:"priority"`
	OrderType           OrderType     `json:"order_type" db:"order_type"`
	Source              string        `json:"source" db:"source"`
	PaymentTerms        int           `json:"payment_terms" db:"payment_terms"`
	PaymentMethod       string        `json:"payment_method,omitempty" db:"payment_method"`
	Subtotal            float64       `json:"subtotal" db:"subtotal"`
	DiscountAmount      float64       `json:"discount_amount" db:"discount_amount"`
	TaxAmount           float64       `json:"tax_amount" db:"tax_amount"`
	ShippingAmount      float64       `json:"shipping_amount" db:"shipping_amount"`
	TotalAmount         float64       `json:"total_amount" db:"total_amount"`
	Currency            string        `json:"currency" db:"currency"`
	ShippingAddress     *Address      `json:"shipping_address,omitempty" db:"shipping_address"`
	BillingAddress      *Address      `json:"billing_address,omitempty" db:"billing_address"`
	SpecialInstructions *string       `json:"special_instructions,omitempty" db:"special_instructions"`
	CancellationReason  *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedBy           int64         `json:"created_by" db:"created_by"`
	ShippedAt           *time.Time    `json:"shipped_at,omitempty" db:"shipped_at"`
	DeliveredAt         *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
	Items               []OrderItem   `json:"items,omitempty" db:"-"`
}

// OrderItem is one line of an order. Items are created atomically with the
// order and are immutable once inventory has been reserved against them.
type OrderItem struct {
	ID              int64   `json:"id" db:"id"`
	OrderID         string  `json:"order_id" db:"order_id"`
	ProductID       string  `json:"product_id" db:"product_id"`
	Quantity        int     `json:"quantity" db:"quantity"`
	UnitPrice       float64 `json:"unit_price" db:"unit_price"`
	DiscountPercent float64 `json:"discount_percent" db:"discount_percent"`
	TaxRate         float64 `json:"tax_rate" db:"tax_rate"`
	Notes           *string `json:"notes,omitempty" db:"notes"`
	LineOrder       int     `json:"line_order" db:"line_order"`
}

// LineSubtotal is the item's contribution to the order subtotal.
func (i OrderItem) LineSubtotal() float64 {
	gross := float64(i.Quantity) * i.UnitPrice
	return round2(gross * (1 - i.DiscountPercent/100))
}

// PaymentTransaction records one gateway-confirmed charge. Under the
// full-amount-or-nothing policy at most one completed transaction exists per
// order.
type PaymentTransaction struct {
	ID                   string         `json:"id" db:"id"`
	TransactionNumber    string         `json:"transaction_number" db:"transaction_number"`
	OrderID              string         `json:"order_id" db:"order_id"`
	CustomerID           string         `json:"customer_id" db:"customer_id"`
	PaymentMethod        string         `json:"payment_method" db:"payment_method"`
	Gateway              string         `json:"gateway" db:"gateway"`
	GatewayTransactionID string         `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	Amount               float64        `json:"amount" db:"amount"`
	Currency             string         `json:"currency" db:"currency"`
	Status               string         `json:"status" db:"status"`
	ProcessedAt          time.Time      `json:"processed_at" db:"processed_at"`
	GatewayResponse      map[string]any `json:"gateway_response,omitempty" db:"gateway_response"`
	NetAmount            float64        `json:"net_amount" db:"net_amount"`
	CreatedBy            int64          `json:"created_by" db:"created_by"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
}

// Shipment is one label issued for an order. Multi-parcel orders are out of
// scope: one shipment per label-creation call.
type Shipment struct {
	ID                string                  `json:"id" db:"id"`
	ShipmentNumber    string                  `json:"shipment_number" db:"shipment_number"`
	OrderID           string                  `json:"order_id" db:"order_id"`
	Carrier           string                  `json:"carrier" db:"carrier"`
	ServiceType       string                  `json:"service_type" db:"service_type"`
	TrackingNumber    string                  `json:"tracking_number" db:"tracking_number"`
	LabelURL          string                  `json:"label_url" db:"label_url"`
	EstimatedDelivery time.Time               `json:"estimated_delivery" db:"estimated_delivery"`
	ShippingCost      float64                 `json:"shipping_cost" db:"shipping_cost"`
	Weight            float64                 `json:"weight" db:"weight"`
	Dimensions        map[string]any          `json:"dimensions,omitempty" db:"dimensions"`
	Status            string                  `json:"status" db:"status"`
	TrackingEvents    []carrier.TrackingEvent `json:"tracking_events,omitempty" db:"tracking_events"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedBy         int64                   `json:"created_by" db:"created_by"`
	CreatedAt         time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at" db:"updated_at"`
}

// ShipmentWithOrder joins shipment with order context for tracking responses.
type ShipmentWithOrder struct {
	Shipment
	OrderNumber  string `json:"order_number" db:"order_number"`
	CustomerName string `json:"customer_name" db:"customer_name"`
}

// RefundObligation is opened when a paid order is cancelled. Settling it is a
// separate back-office concern.
type RefundObligation struct {
	ID            string    `json:"id" db:"id"`
	OrderID       string    `json:"order_id" db:"order_id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	Amount        float64   `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	Reason        string    `json:"reason" db:"reason"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Refund obligation statuses.
const (
	RefundOpen    = "open"
	RefundSettled = "settled"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// cents converts a currency amount to an integer cent count for exact
// comparison.
func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}
