// Package api is the HTTP surface of the dev server. The Server type builds
// the chi router and links each route to its handler.
package api

import (
	"net/http"
	"sync/atomic"

	"github.com/archon-dev/archon/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/cors"
)

var log = logging.Logger("api")

// Server holds the dependencies for our API.
type Server struct {
	app      *core.App
	metrics  *Metrics
	verified atomic.Pointer[verifiedToken]
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	s := &Server{
		app:     app,
		metrics: NewMetrics(),
	}
	app.JobManager().OnStart(s.metrics.jobStarted)
	return s
}

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	// No request timeout: progress streams stay open for the life of a job.
	r.Use(s.corsHandler().Handler)

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Route("/api/jobs", func(r chi.Router) {
			r.Post("/", s.handleStartJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{jobID}", s.handleGetJob)
			r.Post("/{jobID}/cancel", s.handleCancelJob)
			r.Get("/{jobID}/documents", s.handleListJobDocuments)
			r.Get("/{jobID}/stream", s.handleJobStream)
		})
	})

	return r
}

func (s *Server) corsHandler() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: s.app.Config().Server.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Cache-Control", "Accept"},
		ExposedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().Ping(); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"running_jobs": len(s.app.JobManager().Running()),
	})
}
