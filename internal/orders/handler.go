package orders

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/orderpilot/orderpilot/internal/carrier"
	"github.com/orderpilot/orderpilot/internal/inventory"
	"github.com/orderpilot/orderpilot/internal/payments"
	"github.com/orderpilot/orderpilot/internal/platform/httpx"
	"github.com/orderpilot/orderpilot/internal/shared"
)

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: NewValidator(),
		logger:   logger,
	}
}

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		WorkflowStage: order.WorkflowStage,
	})
}

// Show handles GET /orders/{orderID}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// Pay handles POST /orders/{orderID}/payments.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}
	txn, err := h.svc.ProcessPayment(r.Context(), chi.URLParam(r, "orderID"), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, PaymentResponse{
		TransactionID:        txn.ID,
		TransactionNumber:    txn.TransactionNumber,
		GatewayTransactionID: txn.GatewayTransactionID,
		Amount:               txn.Amount,
		NetAmount:            txn.NetAmount,
		Status:               txn.Status,
	})
}

// Ship handles POST /orders/{orderID}/shipments.
func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}
	shipment, err := h.svc.CreateShippingLabel(r.Context(), chi.URLParam(r, "orderID"), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ShipmentResponse{
		ShipmentID:        shipment.ID,
		ShipmentNumber:    shipment.ShipmentNumber,
		TrackingNumber:    shipment.TrackingNumber,
		LabelURL:          shipment.LabelURL,
		EstimatedDelivery: shipment.EstimatedDelivery,
	})
}

// Track handles GET /orders/tracking/{trackingNumber}.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.TrackShipment(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// CompleteStage handles POST /orders/{orderID}/stages/complete.
func (h *Handler) CompleteStage(w http.ResponseWriter, r *http.Request) {
	var req CompleteStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}
	order, err := h.svc.CompleteStage(r.Context(), chi.URLParam(r, "orderID"), req.Stage, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// Cancel handles POST /orders/{orderID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}
	order, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *payments.GatewayError
	var carrierErr *carrier.Error

	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, ErrShipmentNotFound):
		httpx.Problem(w, http.StatusNotFound, "shipment not found", err.Error())
	case errors.Is(err, inventory.ErrBalanceNotFound):
		httpx.Problem(w, http.StatusConflict, "product not stocked", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "insufficient stock", err.Error())
	case errors.Is(err, ErrTotalsMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "totals mismatch", err.Error())
	case errors.Is(err, ErrAmountMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "amount mismatch", err.Error())
	case errors.Is(err, ErrNotPayable),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrPaymentRequired),
		errors.Is(err, ErrOrderFinal),
		errors.Is(err, ErrStageConflict),
		errors.Is(err, ErrNotManualStage):
		httpx.Problem(w, http.StatusConflict, "conflicting order state", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "duplicate request", err.Error())
	case errors.As(err, &gwErr):
		httpx.Problem(w, http.StatusBadGateway, "payment declined", gwErr.Message)
	case errors.As(err, &carrierErr):
		httpx.Problem(w, http.StatusBadGateway, "carrier error", carrierErr.Message)
	default:
		h.logger.Error("order request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "an unexpected error occurred")
	}
}
