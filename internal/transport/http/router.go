package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the operational surface of the core.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/payments/intent", h.handleSubmitIntent)
	r.Get("/payments", h.handleListPayments)
	r.Get("/payments/{id}", h.handleGetPayment)
	r.Post("/payments/{id}/cancel", h.handleCancel)

	r.Post("/scheduler/tick", h.handleTick)
	r.Get("/audit/sync", h.handleSyncValidation)

	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
