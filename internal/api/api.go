// Package api exposes the engine's read-only debug surface over HTTP:
// health/metrics probes, a skill/arm inspector, and an SSE bridge onto
// the engine's event sink. It never calls SelectArmForRequest or
// RecordOutcome; those are library calls the surrounding gateway makes
// directly. This surface only lets operators see what the engine is
// doing.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/events"
)

// Server is the debug/observability HTTP surface.
type Server struct {
	storage        domain.StorageConnector
	hub            *events.Hub
	metricsEnabled bool
}

// NewServer creates a debug API server over the given storage connector.
// hub may be nil, in which case /events responds 404.
func NewServer(storage domain.StorageConnector, hub *events.Hub) *Server {
	return &Server{storage: storage, hub: hub}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/debug", func(r chi.Router) {
		r.Get("/skills/{id}", s.handleGetSkill)
		r.Get("/arms/{partitionId}", s.handleGetArms)
	})

	if s.hub != nil {
		r.Get("/events", s.hub.ServeSSE)
	}

	return r
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	skill, err := s.storage.GetSkill(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	partitions, err := s.storage.GetPartitions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skill":      skill,
		"partitions": partitions,
	})
}

func (s *Server) handleGetArms(w http.ResponseWriter, r *http.Request) {
	partitionID := chi.URLParam(r, "partitionId")
	arms, err := s.storage.GetArmsByPartition(r.Context(), partitionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"arms": arms})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": "error"},
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
