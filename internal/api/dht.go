package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/coord/internal/domain"
)

// ─── DHT Fallback Endpoints ─────────────────────────────────────────────────

// POST /api/dht/announce
// Rejections are reported as accepted=false with 200: an announcement that
// fails admission is normal traffic, not a client error.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var ann domain.DHTAnnouncement
	if !decodeJSON(w, r, &ann) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"accepted": s.dht.ProcessAnnouncement(r.Context(), &ann),
	})
}

// GET /api/dht/peers/{contentHash}?limit=N
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	contentHash := chi.URLParam(r, "contentHash")
	writeJSON(w, http.StatusOK, map[string]any{
		"content_hash": contentHash,
		"peers":        s.dht.GetPeers(contentHash, limit),
	})
}

// GET /api/dht/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dht.Stats())
}

// GET /api/dht/tracker
func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	if s.trackerURL == "" {
		writeError(w, http.StatusNotFound, "no tracker configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       s.trackerURL,
		"available": s.dht.IsTrackerAvailable(r.Context(), s.trackerURL),
	})
}
