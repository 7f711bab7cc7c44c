package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/lifelink/donation-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса lifelink.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/donors/{donorID}", func(r chi.Router) {
			r.Get("/eligibility", h.GetEligibility)
			r.Get("/distance", h.GetDonorDistance)
			r.Get("/schedules", h.GetDonorSchedules)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/{scheduleID}", h.GetSchedule)
			r.Post("/{scheduleID}/complete", h.CompleteSchedule)
			r.Post("/{scheduleID}/cancel", h.CancelSchedule)
		})

		r.Get("/bloodbanks/{bankID}/inventory", h.GetBankInventory)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
