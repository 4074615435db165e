package orders

import "github.com/go-chi/chi/v5"

// MountRoutes registers the order endpoints on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/tracking/{trackingNumber}", h.Track)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Post("/payments", h.Pay)
		r.Post("/shipments", h.Ship)
		r.Post("/stages/complete", h.CompleteStage)
		r.Post("/cancel", h.Cancel)
	})
}
