// Package http serves the observer-facing JSON API and the live event
// stream.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2re1million/ekko/internal/app"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", h.startRecording)
			r.Post("/stop", h.stopRecording)
			r.Get("/status", h.recordingStatus)
			r.Post("/updates/pause", h.pauseUpdates)
			r.Post("/updates/resume", h.resumeUpdates)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.listRuns)
			r.Post("/", h.startRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getRun)
				r.Post("/speakers", h.submitSpeakerNames)
				r.Post("/skip-naming", h.skipNaming)
				r.Post("/cancel", h.cancelRun)
			})
		})
		r.Route("/meetings", func(r chi.Router) {
			r.Get("/", h.listMeetings)
			r.Get("/{id}", h.getMeeting)
		})
		r.Get("/events", h.streamEvents)
	})

	return r
}
