// Package api exposes the commitment lifecycle over HTTP. It is a thin
// JSON layer over the commitments service; authentication is out of
// scope, callers identify themselves with the X-Owner-ID header.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duebook-dev/duebook/internal/commitments"
	"github.com/duebook-dev/duebook/internal/model"
	"github.com/duebook-dev/duebook/internal/store"
)

// Server is the duebook HTTP API server.
type Server struct {
	service        *commitments.Service
	db             *store.DB
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(service *commitments.Service, db *store.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, db: db, logger: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts/{id}", s.handleGetAccount)

		r.Route("/commitments", func(r chi.Router) {
			r.Post("/", s.handleCreateCommitment)
			r.Get("/", s.handleListCommitments)
			r.Get("/{id}", s.handleGetCommitment)
			r.Patch("/{id}", s.handleUpdateCommitment)
			r.Delete("/{id}", s.handleDeleteCommitment)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ownerID extracts the caller identity. The surrounding product
// authenticates upstream; here the header is trusted as-is.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error onto an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, model.ErrAccountUnavailable):
		writeJSON(w, http.StatusConflict, errorBody(err))
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
