// Package api provides the HTTP surface of the coordination node: the
// commit-reveal endpoints, the DHT fallback endpoints and health.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tutu-network/coord/internal/app/commitreveal"
	"github.com/tutu-network/coord/internal/app/dhtfallback"
	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/health"
)

// maxBodyBytes bounds request bodies, including base64 payloads.
const maxBodyBytes = 8 << 20

// Server is the coordination node HTTP API server.
type Server struct {
	commits        *commitreveal.Manager
	dht            *dhtfallback.Manager
	store          domain.ContentStore
	checker        *health.Checker
	trackerURL     string
	version        string
	metricsEnabled bool
	log            *logrus.Entry
}

// NewServer creates a new API server. store is used by the audit endpoint
// and must be the store the commit-reveal manager writes to.
func NewServer(commits *commitreveal.Manager, dht *dhtfallback.Manager, store domain.ContentStore, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Server{
		commits: commits,
		dht:     dht,
		store:   store,
		version: "dev",
		log:     logger.WithField("component", "api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetChecker attaches the health checker reported on /api/health.
func (s *Server) SetChecker(c *health.Checker) { s.checker = c }

// SetTrackerURL sets the tracker probed by /api/dht/tracker.
func (s *Server) SetTrackerURL(u string) { s.trackerURL = u }

// SetVersion sets the version reported on /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
		})
		r.Get("/health", s.handleHealth)

		r.Route("/commitments", func(r chi.Router) {
			r.Post("/", s.handleCommit)
			r.Get("/pending", s.handlePending)
			r.Get("/{id}", s.handleGetCommitment)
			r.Post("/{id}/reveal", s.handleReveal)
			r.Post("/{id}/verify", s.handleVerify)
		})
		r.Post("/audit", s.handleAudit)

		r.Route("/dht", func(r chi.Router) {
			r.Post("/announce", s.handleAnnounce)
			r.Get("/peers/{contentHash}", s.handlePeers)
			r.Get("/stats", s.handleStats)
			r.Get("/tracker", s.handleTracker)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true, "checks": []health.Status{}})
		return
	}
	status := http.StatusOK
	healthy := s.checker.IsHealthy()
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"checks":  s.checker.Statuses(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    http.StatusText(status),
		},
	})
}
