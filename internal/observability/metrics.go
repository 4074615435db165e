package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	OrdersCreated     prometheus.Counter
	PaymentsTotal     *prometheus.CounterVec
	ShipmentsTotal    *prometheus.CounterVec
	WorkflowStalls    prometheus.Counter
	StalledSweepRetry prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderpilot_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderpilot_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderpilot_orders_created_total",
		Help: "Orders created successfully.",
	})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderpilot_payments_total",
		Help: "Payment attempts by outcome.",
	}, []string{"outcome"})
	shipments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderpilot_shipments_total",
		Help: "Shipment events by kind (label_created, delivered).",
	}, []string{"kind"})
	stalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderpilot_workflow_stalls_total",
		Help: "Post-commit auto-advancement failures.",
	})
	sweepRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderpilot_stalled_sweep_retries_total",
		Help: "Orders re-advanced by the reconciliation sweep.",
	})
	registry.MustRegister(requests, duration, ordersCreated, payments, shipments, stalls, sweepRetries)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		OrdersCreated:     ordersCreated,
		PaymentsTotal:     payments,
		ShipmentsTotal:    shipments,
		WorkflowStalls:    stalls,
		StalledSweepRetry: sweepRetries,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
