package orders

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/currency"
)

// CreateOrderRequest is the payload for order creation. Monetary fields are
// submitted by the caller and reconciled server-side against the items.
type CreateOrderRequest struct {
	CustomerID          string             `json:"customer_id" validate:"required,uuid4"`
	SalesRepID          *string            `json:"sales_rep_id" validate:"omitempty,uuid4"`
	AgentID             *string            `json:"agent_id" validate:"omitempty,uuid4"`
	RequiredDate        *time.Time         `json:"required_date"`
	WorkflowType        WorkflowType       `json:"workflow_type" validate:"omitempty,oneof=standard express"`
	Priority            Priority           `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	OrderType           OrderType          `json:"order_type" validate:"omitempty,oneof=sales return exchange"`
	Source              string             `json:"source" validate:"omitempty,max=50"`
	PaymentTerms        int                `json:"payment_terms" validate:"omitempty,gte=0,lte=365"`
	PaymentMethod       string             `json:"payment_method" validate:"omitempty,max=50"`
	Subtotal            float64            `json:"subtotal" validate:"gte=0"`
	DiscountAmount      float64            `json:"discount_amount" validate:"gte=0"`
	TaxAmount           float64            `json:"tax_amount" validate:"gte=0"`
	ShippingAmount      float64            `json:"shipping_amount" validate:"gte=0"`
	TotalAmount         float64            `json:"total_amount" validate:"gte=0"`
	Currency            string             `json:"currency" validate:"omitempty,currency_code"`
	ShippingAddress     *Address           `json:"shipping_address"`
	BillingAddress      *Address           `json:"billing_address"`
	SpecialInstructions *string            `json:"special_instructions" validate:"omitempty,max=2000"`
	Items               []CreateItemInput  `json:"items" validate:"required,min=1,dive"`
}

// CreateItemInput is one order line in a creation request.
type CreateItemInput struct {
	ProductID       string  `json:"product_id" validate:"required"`
	Quantity        int     `json:"quantity" validate:"required,gte=1"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxRate         float64 `json:"tax_rate" validate:"gte=0,lte=100"`
	Notes           *string `json:"notes" validate:"omitempty,max=500"`
}

// ProcessPaymentRequest tenders one full-amount payment for an order.
type ProcessPaymentRequest struct {
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Currency       string  `json:"currency" validate:"omitempty,currency_code"`
	PaymentMethod  string  `json:"payment_method" validate:"required,max=50"`
	Gateway        string  `json:"gateway" validate:"omitempty,max=50"`
	CardNumber     string  `json:"card_number" validate:"omitempty,numeric,min=12,max=19"`
	CardExpiry     string  `json:"card_expiry" validate:"omitempty,len=5"`
	CardCVV        string  `json:"card_cvv" validate:"omitempty,numeric,min=3,max=4"`
	IdempotencyKey string  `json:"idempotency_key" validate:"omitempty,max=128"`
}

// CreateShipmentRequest asks for a shipping label on a paid order.
type CreateShipmentRequest struct {
	Carrier      string         `json:"carrier" validate:"required,max=50"`
	ServiceType  string         `json:"service_type" validate:"omitempty,oneof=standard express overnight"`
	Weight       float64        `json:"weight" validate:"required,gt=0"`
	Dimensions   map[string]any `json:"dimensions"`
	ShippingCost float64        `json:"shipping_cost" validate:"gte=0"`
}

// CompleteStageRequest signals that a manual workflow stage has been done.
type CompleteStageRequest struct {
	Stage Stage `json:"stage" validate:"required"`
}

// CancelOrderRequest cancels an order and releases its reservations.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// CreateOrderResponse is returned on successful creation.
type CreateOrderResponse struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Status        Status `json:"status"`
	WorkflowStage Stage  `json:"workflow_stage"`
}

// PaymentResponse is returned on successful payment capture.
type PaymentResponse struct {
	TransactionID        string  `json:"transaction_id"`
	TransactionNumber    string  `json:"transaction_number"`
	GatewayTransactionID string  `json:"gateway_transaction_id"`
	Amount               float64 `json:"amount"`
	NetAmount            float64 `json:"net_amount"`
	Status               string  `json:"status"`
}

// ShipmentResponse is returned on label issuance.
type ShipmentResponse struct {
	ShipmentID        string    `json:"shipment_id"`
	ShipmentNumber    string    `json:"shipment_number"`
	TrackingNumber    string    `json:"tracking_number"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

// TrackingResponse reports carrier state for one shipment.
type TrackingResponse struct {
	TrackingNumber    string                  `json:"tracking_number"`
	Status            string                  `json:"status"`
	EstimatedDelivery time.Time               `json:"estimated_delivery"`
	Events            []carrierEvent          `json:"events"`
	OrderNumber       string                  `json:"order_number"`
	CustomerName      string                  `json:"customer_name"`
}

type carrierEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewValidator returns the package validator with the currency_code rule
// registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
		_, err := currency.ParseISO(fl.Field().String())
		return err == nil
	})
	return v
}
