// Package server implements the warmth scoring service: the authoritative
// HTTP API that recomputes decayed scores and persists them. Clients cache
// its responses through the warmth package.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/relatia/warmth/internal/store"
)

// MaxBulkIDs is the largest bulk recompute request the service accepts.
// Clients chunk to this bound.
const MaxBulkIDs = 200

// Server is the warmth scoring HTTP API server.
type Server struct {
	db      *store.DB
	log     zerolog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the given database.
func New(db *store.DB, log zerolog.Logger, version string) *Server {
	s := &Server{
		db:      db,
		log:     log.With().Str("component", "server").Logger(),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)

	r.Route("/warmth", func(r chi.Router) {
		r.Post("/recompute/bulk", s.handleRecomputeBulk)
		r.Post("/recompute/{contactID}", s.handleRecompute)
		r.Get("/summary", s.handleSummary)
		r.Get("/modes", s.handleModes)
		r.Patch("/mode/{contactID}", s.handleSetMode)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
