package warmth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/relatia/warmth/internal/score"
)

// Remote is the full surface the warmth service consumes from the scoring
// service. The remote package provides the production client.
type Remote interface {
	Fetcher
	SwitchMode(ctx context.Context, id, mode string) (ModeSwitch, error)
	Summary(ctx context.Context) (Summary, error)
	Modes(ctx context.Context) (score.Modes, error)
}

// Service is the consumer-facing surface over the cache: synchronous reads,
// TTL-defaulted refreshes, local batch overwrites, and the atomic mode
// switch. Stateless beyond delegating to the injected cache and remote.
type Service struct {
	cache  *Cache
	remote Remote
	modes  score.Modes
	log    zerolog.Logger

	ttl      time.Duration // 0 means DefaultTTL
	maxChunk int           // 0 means DefaultMaxChunk
}

// NewService wires a facade over its collaborators. The mode table starts
// from the built-in defaults; call LoadModes to hydrate it from the service.
func NewService(cache *Cache, remote Remote, log zerolog.Logger) *Service {
	return &Service{
		cache:  cache,
		remote: remote,
		modes:  score.DefaultModes,
		log:    log.With().Str("component", "warmth").Logger(),
	}
}

// Tune overrides the freshness window and bulk chunk size for all calls
// through this facade. Zero values keep the package defaults.
func (s *Service) Tune(ttl time.Duration, maxChunk int) {
	s.ttl = ttl
	s.maxChunk = maxChunk
}

// GetWarmth is the non-blocking read path: cached record or the default
// fallback, never a network call. Stale-but-present always beats nothing.
func (s *Service) GetWarmth(id string) Record {
	return s.cache.Get(id)
}

// RefreshSingle fetches an authoritative record for id, honoring TTL and
// in-flight coalescing. source tags the record for diagnostics.
func (s *Service) RefreshSingle(ctx context.Context, id, source string, force bool) (Record, error) {
	return s.cache.GetOrRefresh(ctx, id, Options{Force: force, TTL: s.ttl, Source: source})
}

// RefreshBulk resolves warmth for many contacts at once; see Cache.GetBulk
// for the chunking and partial-failure rules.
func (s *Service) RefreshBulk(ctx context.Context, ids []string, source string, force bool) map[string]Record {
	return s.cache.GetBulk(ctx, ids, BulkOptions{Force: force, TTL: s.ttl, MaxChunk: s.maxChunk, Source: source})
}

// Update is one local overwrite within a BatchUpdate.
type Update struct {
	EntityID          string
	Score             float64
	LastInteractionAt *time.Time
}

// BatchUpdate applies local overwrites for values already known from
// another channel. No network. Idempotent on score and band; only the
// freshness stamp advances on re-application. Returns the number of
// records written; invalid IDs are skipped.
func (s *Service) BatchUpdate(updates []Update, source string) int {
	applied := 0
	for _, u := range updates {
		if _, err := s.cache.SetWarmth(u.EntityID, u.Score, u.LastInteractionAt, source); err != nil {
			s.log.Warn().Err(err).Msg("batch update: skipping entry")
			continue
		}
		applied++
	}
	return applied
}

// SetWarmth overwrites one record locally. See Cache.SetWarmth.
func (s *Service) SetWarmth(id string, sc float64, lastTouch *time.Time, source string) (Record, error) {
	return s.cache.SetWarmth(id, sc, lastTouch, source)
}

// Invalidate drops the given records, or everything when called bare.
func (s *Service) Invalidate(ids ...string) {
	s.cache.Invalidate(ids...)
}

// IsRefreshing reports whether a refresh is in flight for id, or for any
// contact when id is empty.
func (s *Service) IsRefreshing(id string) bool {
	if id == "" {
		return s.cache.AnyRefreshing()
	}
	return s.cache.Refreshing(id)
}

// LastRefreshTime returns when id's record was last written, if cached.
func (s *Service) LastRefreshTime(id string) (time.Time, bool) {
	return s.cache.LastRefreshTime(id)
}

// SwitchMode changes a contact's decay mode in one atomic round-trip. The
// cache is overwritten with the authoritative post-switch score only on
// success; a failure leaves no intermediate state behind.
func (s *Service) SwitchMode(ctx context.Context, id, mode string) (ModeSwitch, error) {
	if strings.TrimSpace(id) == "" {
		return ModeSwitch{}, errEmptyID()
	}
	if strings.TrimSpace(mode) == "" {
		return ModeSwitch{}, &ValidationError{Field: "mode", Reason: "must not be empty"}
	}

	s.cache.trackRefresh(id, 1)
	defer s.cache.trackRefresh(id, -1)

	sw, err := s.remote.SwitchMode(ctx, id, mode)
	if err != nil {
		return ModeSwitch{}, err
	}

	// Indistinguishable from a normal refresh to downstream readers.
	s.cache.store(Record{
		EntityID: id,
		Score:    sw.ScoreAfter,
		Mode:     sw.ModeAfter,
	}, "mode-switch")
	return sw, nil
}

// Summary fetches the aggregate band counts fresh on every call; it is
// informational and deliberately uncached.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.remote.Summary(ctx)
}

// LoadModes hydrates the decay-mode table from the scoring service. On any
// failure the built-in defaults stay active — the model never breaks over a
// missing table.
func (s *Service) LoadModes(ctx context.Context) score.Modes {
	modes, err := s.remote.Modes(ctx)
	if err != nil || len(modes) == 0 {
		s.log.Warn().Err(err).Msg("mode table fetch failed, using built-in defaults")
		s.modes = score.DefaultModes
		return s.modes
	}
	s.modes = modes
	return s.modes
}

// DaysUntilAttention applies the active mode table to a contact's cached
// score.
func (s *Service) DaysUntilAttention(id string) int {
	rec := s.cache.Get(id)
	return s.modes.DaysUntilAttention(rec.Score, rec.Mode, score.AttentionThreshold)
}
