package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relatia/warmth/internal/score"
	"github.com/relatia/warmth/internal/store"
)

// scoreJSON is the wire shape of a recomputed contact.
type scoreJSON struct {
	ID                string     `json:"id"`
	Score             float64    `json:"score"`
	Band              string     `json:"band"`
	Mode              string     `json:"mode"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	Err               string     `json:"error,omitempty"`
}

func toScoreJSON(row store.ScoreRow) scoreJSON {
	return scoreJSON{
		ID:                row.ContactID,
		Score:             row.Score,
		Band:              string(score.ClassifyBand(row.Score)),
		Mode:              row.Mode,
		LastInteractionAt: row.LastInteractionAt,
	}
}

// handleRecompute performs the authoritative single-entity recompute.
// The force query parameter is a client cache directive; the service
// recomputes unconditionally either way.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	if strings.TrimSpace(contactID) == "" {
		writeError(w, http.StatusBadRequest, "contact id required")
		return
	}

	row, err := s.db.Recompute(contactID, time.Now())
	if err != nil {
		s.log.Error().Err(err).Str("contact", contactID).Msg("recompute failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toScoreJSON(row))
}

func (s *Server) handleRecomputeBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if len(req.IDs) > MaxBulkIDs {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}

	now := time.Now()
	results := make([]scoreJSON, 0, len(req.IDs))
	for _, id := range req.IDs {
		// Per-entity isolation: a bad ID yields an error entry, never a
		// failed batch.
		if strings.TrimSpace(id) == "" {
			results = append(results, scoreJSON{ID: id, Err: "empty id"})
			continue
		}
		row, err := s.db.Recompute(id, now)
		if err != nil {
			s.log.Warn().Err(err).Str("contact", id).Msg("bulk recompute: entity failed")
			results = append(results, scoreJSON{ID: id, Err: err.Error()})
			continue
		}
		results = append(results, toScoreJSON(row))
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.db.Summary(time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("summary failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":         sum.Total,
		"average_score": sum.Average,
		"bands":         sum.Bands,
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": score.DefaultModes})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	if strings.TrimSpace(contactID) == "" {
		writeError(w, http.StatusBadRequest, "contact id required")
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, "mode required")
		return
	}

	before, after, err := s.db.SetMode(contactID, req.Mode, time.Now())
	if err != nil {
		s.log.Warn().Err(err).Str("contact", contactID).Str("mode", req.Mode).Msg("set mode failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode_before":  before.Mode,
		"mode_after":   after.Mode,
		"score_before": before.Score,
		"score_after":  after.Score,
		"band_after":   string(score.ClassifyBand(after.Score)),
	})
}
