package orders

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	env := newTestEnv(t)
	h := NewHandler(env.svc, slog.Default())
	r := chi.NewRouter()
	r.Route("/orders", h.MountRoutes)
	return env, r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateOrder(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/orders", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.OrderID)
	require.Regexp(t, `^ORD\d{6}0001$`, resp.OrderNumber)
	require.Equal(t, StageApproval, resp.WorkflowStage)
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	_, router := newTestRouter(t)

	req := validCreateRequest()
	req.CustomerID = "not-a-uuid"
	rec := doJSON(t, router, http.MethodPost, "/orders", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = validCreateRequest()
	req.Items = nil
	rec = doJSON(t, router, http.MethodPost, "/orders", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = validCreateRequest()
	req.Currency = "ZZZ"
	rec = doJSON(t, router, http.MethodPost, "/orders", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerCreateOrderBadJSON(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerShowOrder(t *testing.T) {
	env, router := newTestRouter(t)
	order, err := env.svc.CreateOrder(t.Context(), validCreateRequest(), testActorID)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, order.OrderNumber, got.OrderNumber)

	rec = doJSON(t, router, http.MethodGet, "/orders/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerPayment(t *testing.T) {
	env, router := newTestRouter(t)
	order := moveToPayable(t, env)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/payments", ProcessPaymentRequest{
		Amount:        63.50,
		PaymentMethod: "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Regexp(t, `^TXN`, resp.TransactionNumber)
}

func TestHandlerPaymentAmountMismatch(t *testing.T) {
	env, router := newTestRouter(t)
	order := moveToPayable(t, env)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/payments", ProcessPaymentRequest{
		Amount:        63.49,
		PaymentMethod: "card",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerShipmentBeforePayment(t *testing.T) {
	env, router := newTestRouter(t)
	order := moveToPayable(t, env)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/shipments", CreateShipmentRequest{
		Carrier: "ups",
		Weight:  2.4,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerTracking(t *testing.T) {
	env, router := newTestRouter(t)
	_, shipment := shipOrder(t, env)

	rec := doJSON(t, router, http.MethodGet, "/orders/tracking/"+shipment.TrackingNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, shipment.TrackingNumber, resp.TrackingNumber)
	require.Equal(t, "Acme Retail", resp.CustomerName)

	rec = doJSON(t, router, http.MethodGet, "/orders/tracking/UNKNOWN", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCompleteStageAndCancel(t *testing.T) {
	env, router := newTestRouter(t)
	order, err := env.svc.CreateOrder(t.Context(), validCreateRequest(), testActorID)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/stages/complete", CompleteStageRequest{Stage: StageApproval})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/stages/complete", CompleteStageRequest{Stage: StageApproval})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/cancel", CancelOrderRequest{Reason: "customer changed their mind"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/cancel", CancelOrderRequest{Reason: "double cancel attempt"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCancelValidation(t *testing.T) {
	env, router := newTestRouter(t)
	order, err := env.svc.CreateOrder(t.Context(), validCreateRequest(), testActorID)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID+"/cancel", CancelOrderRequest{Reason: "no"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
