package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/coord/internal/app/commitreveal"
	"github.com/tutu-network/coord/internal/domain"
)

// ─── Commit-Reveal Endpoints ────────────────────────────────────────────────

// payloadRequest carries raw bytes; encoding/json reads them as base64.
type payloadRequest struct {
	Data     []byte          `json:"data"`
	DataType domain.DataType `json:"data_type,omitempty"`
}

type commitmentResponse struct {
	domain.Commitment
	CanReveal bool           `json:"can_reveal"`
	Reveal    *domain.Reveal `json:"reveal,omitempty"`
}

type auditRequest struct {
	CommitmentStorageID string `json:"commitment_storage_id"`
	ReceiptStorageID    string `json:"receipt_storage_id"`
}

// POST /api/commitments
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DataType == "" {
		req.DataType = domain.DataGameState
	}
	if !req.DataType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown data_type "+string(req.DataType))
		return
	}

	c, err := s.commits.Commit(r.Context(), req.Data, req.DataType)
	if err != nil {
		s.log.WithError(err).Warn("commit failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/commitments/pending
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commitments": s.commits.PendingCommitments(),
	})
}

// GET /api/commitments/{id}
func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.commits.Commitment(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown commitment "+id)
		return
	}
	resp := commitmentResponse{Commitment: c, CanReveal: s.commits.CanReveal(id)}
	if rev, ok := s.commits.RevealFor(id); ok {
		resp.Reveal = &rev
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/commitments/{id}/reveal
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req payloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rev, err := s.commits.Reveal(r.Context(), id, req.Data)
	if err != nil {
		var early *domain.RevealTooEarlyError
		switch {
		case errors.As(err, &early):
			writeJSON(w, http.StatusTooEarly, map[string]any{
				"error": map[string]any{
					"message": err.Error(),
					"type":    http.StatusText(http.StatusTooEarly),
				},
				"remaining_ms": early.Remaining.Milliseconds(),
			})
		case errors.Is(err, domain.ErrUnknownCommitment):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrHashMismatch):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.log.WithError(err).WithField("commitment", id).Warn("reveal failed")
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// POST /api/commitments/{id}/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.commits.VerifyReveal(chi.URLParam(r, "id"), req.Data))
}

// POST /api/audit
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CommitmentStorageID == "" || req.ReceiptStorageID == "" {
		writeError(w, http.StatusBadRequest, "commitment_storage_id and receipt_storage_id are required")
		return
	}

	report, err := commitreveal.Audit(r.Context(), s.store, req.CommitmentStorageID, req.ReceiptStorageID)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
