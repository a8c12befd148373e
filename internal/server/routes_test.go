package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relatia/warmth/internal/score"
	"github.com/relatia/warmth/internal/store"
)

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, zerolog.Nop(), "test"), db
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestRecomputeUnknownContactMaterializesDefault(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/warmth/recompute/c1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["score"].(float64) != 50 {
		t.Errorf("score = %v, want 50", resp["score"])
	}
	if resp["band"] != "warm" {
		t.Errorf("band = %v, want warm", resp["band"])
	}
}

func TestRecomputeReturnsDecayedScore(t *testing.T) {
	srv, db := testServer(t)
	touch := time.Now().Add(-time.Duration(score.DefaultModes.HalfLife(score.ModeMedium) * 24 * float64(time.Hour)))
	db.Upsert("c1", 90, score.ModeMedium, &touch)

	req := httptest.NewRequest("POST", "/warmth/recompute/c1?force=1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	got := resp["score"].(float64)
	if got < 44 || got > 46 {
		t.Errorf("half-life decayed score = %v, want ~45", got)
	}
	if resp["band"] != "cool" {
		t.Errorf("band = %v, want cool", resp["band"])
	}
}

func TestRecomputeBulk(t *testing.T) {
	srv, db := testServer(t)
	now := time.Now()
	db.Upsert("c1", 80, score.ModeMedium, &now)

	body := `{"ids":["c1","c2",""]}`
	req := httptest.NewRequest("POST", "/warmth/recompute/bulk", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Results []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
			Err   string  `json:"error"`
		} `json:"results"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	byID := map[string]string{}
	for _, r := range resp.Results {
		byID[r.ID] = r.Err
	}
	if byID["c1"] != "" {
		t.Errorf("c1 error = %q, want none", byID["c1"])
	}
	if byID["c2"] != "" {
		t.Errorf("c2 (unknown, materialized) error = %q, want none", byID["c2"])
	}
	if byID[""] == "" {
		t.Error("empty id should carry a per-entity error, not abort the batch")
	}
}

func TestRecomputeBulkTooManyIDs(t *testing.T) {
	srv, _ := testServer(t)

	ids := make([]string, MaxBulkIDs+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i)
	}
	body, _ := json.Marshal(map[string]any{"ids": ids})
	req := httptest.NewRequest("POST", "/warmth/recompute/bulk", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRecomputeBulkEmptyBody(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/warmth/recompute/bulk", strings.NewReader(`{"ids":[]}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSummary(t *testing.T) {
	srv, db := testServer(t)
	now := time.Now()
	db.Upsert("c1", 90, score.ModeMedium, &now)
	db.Upsert("c2", 20, score.ModeMedium, &now)

	req := httptest.NewRequest("GET", "/warmth/summary", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp struct {
		Total int            `json:"total"`
		Bands map[string]int `json:"bands"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	if resp.Bands["hot"] != 1 || resp.Bands["cold"] != 1 {
		t.Errorf("bands = %v", resp.Bands)
	}
}

func TestModes(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/warmth/modes", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp struct {
		Modes map[string]float64 `json:"modes"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Modes) != 4 {
		t.Errorf("modes = %d entries, want 4", len(resp.Modes))
	}
	if resp.Modes["medium"] != score.DefaultModes[score.ModeMedium] {
		t.Errorf("medium λ = %v, want %v", resp.Modes["medium"], score.DefaultModes[score.ModeMedium])
	}
}

func TestSetMode(t *testing.T) {
	srv, db := testServer(t)
	touch := time.Now().Add(-4 * 24 * time.Hour)
	db.Upsert("c2", 70, score.ModeSlow, &touch)

	req := httptest.NewRequest("PATCH", "/warmth/mode/c2", strings.NewReader(`{"mode":"fast"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["mode_before"] != "slow" || resp["mode_after"] != "fast" {
		t.Errorf("modes = %v -> %v, want slow -> fast", resp["mode_before"], resp["mode_after"])
	}
	if resp["score_after"].(float64) >= resp["score_before"].(float64) {
		t.Errorf("score_after %v should decay below score_before %v under fast λ",
			resp["score_after"], resp["score_before"])
	}
}

func TestSetModeValidation(t *testing.T) {
	srv, db := testServer(t)
	now := time.Now()
	db.Upsert("c1", 50, score.ModeMedium, &now)

	cases := []struct {
		name string
		url  string
		body string
	}{
		{"unknown mode", "/warmth/mode/c1", `{"mode":"glacial"}`},
		{"missing mode", "/warmth/mode/c1", `{}`},
		{"bad json", "/warmth/mode/c1", `nope`},
		{"unknown contact", "/warmth/mode/ghost", `{"mode":"fast"}`},
	}
	for _, c := range cases {
		req := httptest.NewRequest("PATCH", c.url, strings.NewReader(c.body))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", c.name, w.Code, http.StatusBadRequest)
		}
	}
}
