// Package warmth implements the client-side warmth scoring cache and
// synchronization engine: a TTL-gated, request-coalescing cache over the
// remote scoring service, a chunked parallel bulk refresher, and the
// consumer facade the rest of the application reads through.
package warmth

import (
	"time"

	"github.com/relatia/warmth/internal/score"
)

// DefaultScore is the score a contact is assumed to have before any
// authoritative value is known. 50 classifies as warm.
const DefaultScore = 50.0

// Record is the latest known warmth state for one contact. Exactly one
// record per contact ID exists in the cache at any time; Band is always
// recomputed from Score on write and never drifts from it.
type Record struct {
	EntityID          string     `json:"entity_id"`
	Score             float64    `json:"score"`
	Band              score.Band `json:"band"`
	Mode              string     `json:"mode,omitempty"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	LastUpdated       time.Time  `json:"last_updated"`

	// RefreshSource tags which caller produced this value. Diagnostics
	// only, never consulted by any decision.
	RefreshSource string `json:"refresh_source,omitempty"`
}

// Fresh reports whether the record was written within ttl of now.
func (r Record) Fresh(ttl time.Duration, now time.Time) bool {
	if r.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(r.LastUpdated) < ttl
}

// defaultRecord is the deterministic fallback returned for an uncached ID.
// It carries a zero LastUpdated so any refresh treats it as stale.
func defaultRecord(id string) Record {
	return Record{
		EntityID: id,
		Score:    DefaultScore,
		Band:     score.ClassifyBand(DefaultScore),
	}
}

// BulkEntry is one contact's result within a bulk recompute. A non-empty
// Err means this entity failed server-side; the rest of the batch is
// unaffected.
type BulkEntry struct {
	EntityID          string     `json:"id"`
	Score             float64    `json:"score"`
	Band              string     `json:"band,omitempty"`
	Mode              string     `json:"mode,omitempty"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	Err               string     `json:"error,omitempty"`
}

// ModeSwitch is the result of an atomic decay-mode change.
type ModeSwitch struct {
	EntityID    string     `json:"entity_id"`
	ModeBefore  string     `json:"mode_before"`
	ModeAfter   string     `json:"mode_after"`
	ScoreBefore float64    `json:"score_before"`
	ScoreAfter  float64    `json:"score_after"`
	BandAfter   score.Band `json:"band_after"`
}

// Summary is the aggregate view returned by the scoring service.
type Summary struct {
	Total        int            `json:"total"`
	AverageScore float64        `json:"average_score"`
	Bands        map[string]int `json:"bands"`
}
