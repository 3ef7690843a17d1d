package sim

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HealthHandler)

		r.Get("/runs", s.ListRunsHandler)
		r.Post("/runs", s.CreateRunHandler)

		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Post("/start", s.StartRunHandler)
			r.Get("/status", s.StatusHandler)
			r.Get("/events", s.EventsHandler)
			r.Get("/trace", s.TraceHandler)
			r.Get("/logs", s.LogsHandler)
			r.Post("/events/{eventID}/review", s.ReviewHandler)
			r.Get("/export", s.ExportHandler)
			r.Get("/artifact", s.ArtifactHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
