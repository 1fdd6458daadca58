package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers viewer routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/status", h.Status)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Post("/send", h.Send)

		if h.runs != nil {
			r.Get("/runs", h.ListRuns)
			r.Get("/runs/{runID}", h.GetRun)
		}

		if h.sim != nil {
			r.Route("/sim", func(r chi.Router) {
				r.Get("/characters", h.Characters)
				r.Post("/characters", h.CreateCharacter)
				r.Post("/pairs", h.SubmitPairs)
				r.Post("/start", h.simAction("start simulation", h.sim.Start))
				r.Post("/stop", h.simAction("stop simulation", h.sim.Stop))
				r.Post("/reset", h.simAction("reset room", h.sim.Reset))
				r.Post("/next-round", h.simAction("advance round", h.sim.NextRound))
			})
		}
	})

	r.Get("/ws/state", h.StreamState)
}

// NewRouter builds the full HTTP surface. renderer serves /ws/render.
func NewRouter(h *Handler, renderer http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS(h.originPatterns))

	h.RegisterRoutes(r)
	if renderer != nil {
		r.Get("/ws/render", renderer.ServeHTTP)
	}
	r.Handle("/metrics", promhttp.Handler())

	return r
}
