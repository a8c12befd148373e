// Package remote is the HTTP client for the warmth scoring service. It
// speaks the /warmth API, validates payloads at the decode boundary, and
// wraps transport failures in the warmth error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/relatia/warmth/internal/score"
	"github.com/relatia/warmth/internal/warmth"
)

// DefaultTimeout bounds every request. The cache layer defines no
// cancellation of its own; a timeout here surfaces as an ordinary
// TransportError.
const DefaultTimeout = 30 * time.Second

// Client talks to the warmth scoring service.
type Client struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a client for the service at baseURL. A zero timeout
// uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		log:     log.With().Str("component", "remote").Logger(),
	}
}

// recomputePayload is the wire shape of a single-entity recompute. Score is
// a pointer so a missing field is distinguishable from zero and rejected at
// the boundary instead of propagating half-typed data into the cache.
type recomputePayload struct {
	Score             *float64   `json:"score"`
	Band              string     `json:"band,omitempty"`
	Mode              string     `json:"mode,omitempty"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

func (p *recomputePayload) toRecord(id string) (warmth.Record, error) {
	if p.Score == nil {
		return warmth.Record{}, &warmth.ValidationError{Field: "payload", Reason: "recompute response missing score"}
	}
	return warmth.Record{
		EntityID:          id,
		Score:             score.Clamp(*p.Score),
		Mode:              p.Mode,
		LastInteractionAt: p.LastInteractionAt,
	}, nil
}

// Recompute asks the service for an authoritative single-entity recompute.
func (c *Client) Recompute(ctx context.Context, id string, force bool) (warmth.Record, error) {
	path := "/warmth/recompute/" + url.PathEscape(id)
	if force {
		path += "?force=1"
	}
	var payload recomputePayload
	if err := c.do(ctx, http.MethodPost, path, nil, &payload, "recompute"); err != nil {
		return warmth.Record{}, err
	}
	return payload.toRecord(id)
}

// RecomputeBulk recomputes one chunk of IDs. Per-entity failures arrive as
// entries with a non-empty error field; the call itself fails only on
// transport problems.
func (c *Client) RecomputeBulk(ctx context.Context, ids []string, force bool) ([]warmth.BulkEntry, error) {
	path := "/warmth/recompute/bulk"
	if force {
		path += "?force=1"
	}
	var resp struct {
		Results []warmth.BulkEntry `json:"results"`
	}
	body := map[string]any{"ids": ids}
	if err := c.do(ctx, http.MethodPost, path, body, &resp, "recompute bulk"); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SwitchMode changes a contact's decay mode in one round-trip.
func (c *Client) SwitchMode(ctx context.Context, id, mode string) (warmth.ModeSwitch, error) {
	var resp struct {
		ModeBefore  string   `json:"mode_before"`
		ModeAfter   string   `json:"mode_after"`
		ScoreBefore *float64 `json:"score_before"`
		ScoreAfter  *float64 `json:"score_after"`
		BandAfter   string   `json:"band_after"`
	}
	path := "/warmth/mode/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"mode": mode}, &resp, "switch mode"); err != nil {
		return warmth.ModeSwitch{}, err
	}
	if resp.ScoreAfter == nil || resp.ScoreBefore == nil {
		return warmth.ModeSwitch{}, &warmth.ValidationError{Field: "payload", Reason: "mode switch response missing scores"}
	}
	after := score.Clamp(*resp.ScoreAfter)
	return warmth.ModeSwitch{
		EntityID:    id,
		ModeBefore:  resp.ModeBefore,
		ModeAfter:   resp.ModeAfter,
		ScoreBefore: score.Clamp(*resp.ScoreBefore),
		ScoreAfter:  after,
		BandAfter:   score.ClassifyBand(after),
	}, nil
}

// Summary fetches the aggregate band counts, fresh on every call.
func (c *Client) Summary(ctx context.Context) (warmth.Summary, error) {
	var resp warmth.Summary
	if err := c.do(ctx, http.MethodGet, "/warmth/summary", nil, &resp, "summary"); err != nil {
		return warmth.Summary{}, err
	}
	return resp, nil
}

// Modes fetches the decay-mode λ table. Callers fall back to the built-in
// table on failure.
func (c *Client) Modes(ctx context.Context) (score.Modes, error) {
	var resp struct {
		Modes map[string]float64 `json:"modes"`
	}
	if err := c.do(ctx, http.MethodGet, "/warmth/modes", nil, &resp, "modes"); err != nil {
		return nil, err
	}
	if len(resp.Modes) == 0 {
		return nil, &warmth.ValidationError{Field: "payload", Reason: "modes response empty"}
	}
	return score.Modes(resp.Modes), nil
}

// Healthy checks whether the service is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// do issues one request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &warmth.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &warmth.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &warmth.TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", bytes.TrimSpace(data)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &warmth.ValidationError{Field: "payload", Reason: fmt.Sprintf("%s: invalid json: %v", op, err)}
	}
	return nil
}
