package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relatia/warmth/internal/score"
)

// ScoreRow is one contact's persisted decay state.
type ScoreRow struct {
	ContactID         string
	BaseScore         float64 // score as of the last interaction
	Score             float64 // last computed decayed score
	Mode              string
	LastInteractionAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const scoreColumns = "contact_id, base_score, score, mode, last_interaction_at, created_at, updated_at"

func scanScoreRow(scan func(...any) error) (ScoreRow, error) {
	var (
		row           ScoreRow
		lastTouch     sql.NullInt64
		created, updd int64
	)
	if err := scan(&row.ContactID, &row.BaseScore, &row.Score, &row.Mode, &lastTouch, &created, &updd); err != nil {
		return ScoreRow{}, err
	}
	if lastTouch.Valid {
		t := time.UnixMilli(lastTouch.Int64)
		row.LastInteractionAt = &t
	}
	row.CreatedAt = time.UnixMilli(created)
	row.UpdatedAt = time.UnixMilli(updd)
	return row, nil
}

// GetScore returns a contact's row, or nil if the contact is unknown.
func (db *DB) GetScore(id string) (*ScoreRow, error) {
	row, err := scanScoreRow(db.QueryRow(
		"SELECT "+scoreColumns+" FROM warmth_scores WHERE contact_id = ?", id,
	).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score %s: %w", id, err)
	}
	return &row, nil
}

// Upsert writes a contact's base state. Used for seeding and for reflecting
// interactions recorded by the surrounding application.
func (db *DB) Upsert(id string, baseScore float64, mode string, lastInteractionAt *time.Time) error {
	now := time.Now().UnixMilli()
	var touch any
	if lastInteractionAt != nil {
		touch = lastInteractionAt.UnixMilli()
	}
	baseScore = score.Clamp(baseScore)
	if mode == "" {
		mode = score.ModeDefault
	}
	_, err := db.Exec(`
		INSERT INTO warmth_scores (contact_id, base_score, score, mode, last_interaction_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			base_score = excluded.base_score,
			score = excluded.score,
			mode = excluded.mode,
			last_interaction_at = excluded.last_interaction_at,
			updated_at = excluded.updated_at
	`, id, baseScore, baseScore, mode, touch, now, now)
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", id, err)
	}
	return nil
}

// Recompute derives the current decayed score for a contact and persists
// it. Unknown contacts materialize a default row (score 50, mode medium)
// first — absence is not an error, matching the client's fallback.
//
// The decay itself runs in Go rather than SQL: modernc.org/sqlite has no
// pow(), and the exponential needs one.
func (db *DB) Recompute(id string, now time.Time) (ScoreRow, error) {
	if id == "" {
		return ScoreRow{}, fmt.Errorf("recompute: empty contact id")
	}

	row, err := db.GetScore(id)
	if err != nil {
		return ScoreRow{}, err
	}
	if row == nil {
		if err := db.Upsert(id, 50, score.ModeDefault, nil); err != nil {
			return ScoreRow{}, err
		}
		row, err = db.GetScore(id)
		if err != nil || row == nil {
			return ScoreRow{}, fmt.Errorf("recompute %s: materialize default: %w", id, err)
		}
	}

	decayed := decayedScore(*row, now)
	if _, err := db.Exec(
		"UPDATE warmth_scores SET score = ?, updated_at = ? WHERE contact_id = ?",
		decayed, now.UnixMilli(), id,
	); err != nil {
		return ScoreRow{}, fmt.Errorf("recompute %s: persist: %w", id, err)
	}

	row.Score = decayed
	row.UpdatedAt = now
	return *row, nil
}

// decayedScore applies exponential decay to the base score over the time
// since the last interaction (or row creation, if the contact was never
// touched).
func decayedScore(row ScoreRow, now time.Time) float64 {
	ref := row.CreatedAt
	if row.LastInteractionAt != nil {
		ref = *row.LastInteractionAt
	}
	days := now.Sub(ref).Hours() / 24
	return score.DefaultModes.Decay(row.BaseScore, row.Mode, days)
}

// SetMode atomically switches a contact's decay mode, recomputing the score
// under the old and new λ so the caller sees both sides of the transition.
// The contact must exist.
func (db *DB) SetMode(id, mode string, now time.Time) (before, after ScoreRow, err error) {
	if _, ok := score.DefaultModes[mode]; !ok {
		return ScoreRow{}, ScoreRow{}, fmt.Errorf("set mode %s: unknown mode %q", id, mode)
	}

	row, err := db.GetScore(id)
	if err != nil {
		return ScoreRow{}, ScoreRow{}, err
	}
	if row == nil {
		return ScoreRow{}, ScoreRow{}, fmt.Errorf("set mode: unknown contact %q", id)
	}

	before = *row
	before.Score = decayedScore(before, now)

	after = before
	after.Mode = mode
	after.Score = decayedScore(after, now)
	after.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return ScoreRow{}, ScoreRow{}, fmt.Errorf("set mode %s: begin: %w", id, err)
	}
	if _, err := tx.Exec(
		"UPDATE warmth_scores SET mode = ?, score = ?, updated_at = ? WHERE contact_id = ?",
		mode, after.Score, now.UnixMilli(), id,
	); err != nil {
		tx.Rollback()
		return ScoreRow{}, ScoreRow{}, fmt.Errorf("set mode %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return ScoreRow{}, ScoreRow{}, fmt.Errorf("set mode %s: commit: %w", id, err)
	}
	return before, after, nil
}

// SummaryRow aggregates the whole table: per-band counts plus the average
// of current decayed scores.
type SummaryRow struct {
	Total   int
	Average float64
	Bands   map[string]int
}

// Summary recomputes every contact's decayed score in Go and aggregates by
// band. Informational; nothing is persisted.
func (db *DB) Summary(now time.Time) (SummaryRow, error) {
	rows, err := db.Query("SELECT " + scoreColumns + " FROM warmth_scores")
	if err != nil {
		return SummaryRow{}, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	out := SummaryRow{Bands: make(map[string]int)}
	sum := 0.0
	for rows.Next() {
		row, err := scanScoreRow(rows.Scan)
		if err != nil {
			return SummaryRow{}, fmt.Errorf("summary scan: %w", err)
		}
		s := decayedScore(row, now)
		out.Total++
		sum += s
		out.Bands[string(score.ClassifyBand(s))]++
	}
	if err := rows.Err(); err != nil {
		return SummaryRow{}, err
	}
	if out.Total > 0 {
		out.Average = sum / float64(out.Total)
	}
	return out, nil
}
