package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter собирает chi-маршрутизатор со всеми маршрутами API.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/entry", h.Enter)
		r.Post("/exit", h.ExitByPlate)

		r.Route("/levels", func(r chi.Router) {
			r.Get("/", h.ListLevels)
			r.Post("/", h.CreateLevel)
			r.Get("/{id}/spots", h.LevelSpots)
		})

		r.Route("/spots", func(r chi.Router) {
			r.Get("/{id}", h.GetSpot)
			r.Get("/{id}/slots", h.SpotSlots)
			r.Put("/{id}/occupy", h.OccupySpot)
			r.Put("/{id}/release", h.ReleaseSpot)
			r.Put("/{id}/disable", h.DisableSpot)
			r.Put("/{id}/enable", h.EnableSpot)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", h.ListTickets)
			r.Get("/{id}", h.GetTicket)
			r.Post("/{id}/exit", h.Exit)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/checkin", h.CheckIn)
			r.Post("/{id}/cancel", h.CancelReservation)
		})

		r.Get("/stats", h.Stats)
	})

	return r
}
