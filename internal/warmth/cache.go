package warmth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/relatia/warmth/internal/score"
)

// DefaultTTL is the freshness window for cached records. A record older
// than this is eligible for a new fetch but stays readable until a fresh
// value overwrites it.
const DefaultTTL = 5 * time.Minute

// Fetcher performs authoritative recomputes against the scoring service.
// The remote package provides the production implementation; tests inject
// fakes.
type Fetcher interface {
	Recompute(ctx context.Context, id string, force bool) (Record, error)
	RecomputeBulk(ctx context.Context, ids []string, force bool) ([]BulkEntry, error)
}

// Options control a single-entity refresh.
type Options struct {
	// Force skips the TTL check and always reaches the service (unless an
	// in-flight refresh for the same ID can be joined instead).
	Force bool
	// TTL overrides DefaultTTL when > 0.
	TTL time.Duration
	// Source tags the resulting record for diagnostics.
	Source string
}

func (o Options) ttl() time.Duration {
	if o.TTL > 0 {
		return o.TTL
	}
	return DefaultTTL
}

// Cache owns the single in-process source of truth for warmth records: the
// record map plus bookkeeping of in-flight refreshes. All mutation goes
// through it. Construct one and inject it; there is no package-level
// instance.
//
// The mutex guards only the synchronous map operations. It is never held
// across a network call — coalescing of concurrent refreshes for the same
// ID is delegated to singleflight, which makes the check-and-register step
// atomic with respect to other callers.
type Cache struct {
	fetcher Fetcher
	log     zerolog.Logger

	group singleflight.Group

	mu         sync.Mutex
	records    map[string]Record
	refreshing map[string]int
}

// NewCache creates an empty cache backed by the given fetcher.
func NewCache(fetcher Fetcher, log zerolog.Logger) *Cache {
	return &Cache{
		fetcher:    fetcher,
		log:        log.With().Str("component", "warmth-cache").Logger(),
		records:    make(map[string]Record),
		refreshing: make(map[string]int),
	}
}

// Get returns the cached record for id, or the deterministic default record
// if none exists. Synchronous, no I/O, no side effects. Absence from the
// cache is a valid state, not an error.
func (c *Cache) Get(id string) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[id]; ok {
		return rec
	}
	return defaultRecord(id)
}

// Lookup is Get without the default fallback.
func (c *Cache) Lookup(id string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	return rec, ok
}

// GetOrRefresh returns a fresh record for id, reaching the scoring service
// when needed. Concurrent callers for the same ID share one underlying
// request and receive the identical value or identical error. On failure
// the cache is left exactly as it was.
func (c *Cache) GetOrRefresh(ctx context.Context, id string, opts Options) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, errEmptyID()
	}

	if !opts.Force {
		if rec, ok := c.Lookup(id); ok && rec.Fresh(opts.ttl(), time.Now()) {
			return rec, nil
		}
	}

	c.trackRefresh(id, 1)
	defer c.trackRefresh(id, -1)

	v, err, shared := c.group.Do(id, func() (any, error) {
		// Re-check under coalescing: a flight that settled between our TTL
		// check and here may have already written a fresh value.
		if !opts.Force {
			if rec, ok := c.Lookup(id); ok && rec.Fresh(opts.ttl(), time.Now()) {
				return rec, nil
			}
		}
		rec, err := c.fetcher.Recompute(ctx, id, opts.Force)
		if err != nil {
			return nil, err
		}
		return c.store(rec, opts.Source), nil
	})
	if err != nil {
		c.log.Debug().Err(err).Str("id", id).Msg("refresh failed")
		return Record{}, err
	}
	if shared {
		c.log.Debug().Str("id", id).Msg("joined in-flight refresh")
	}
	return v.(Record), nil
}

// SetWarmth overwrites the cached record locally, bypassing the network.
// Used for optimistic updates and for reflecting values already known from
// another channel. Stamps LastUpdated, which also resets TTL freshness.
func (c *Cache) SetWarmth(id string, s float64, lastTouch *time.Time, source string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, errEmptyID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rec := Record{
		EntityID:          id,
		Score:             score.Clamp(s),
		Band:              score.ClassifyBand(s),
		Mode:              c.records[id].Mode, // keep the known decay mode, if any
		LastInteractionAt: lastTouch,
		LastUpdated:       time.Now(),
		RefreshSource:     source,
	}
	c.records[id] = rec
	return rec, nil
}

// Invalidate removes the given records, or all records when called with no
// IDs. In-flight refreshes are not cancelled; they settle normally and
// re-populate the cache on completion.
func (c *Cache) Invalidate(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.records = make(map[string]Record)
		return
	}
	for _, id := range ids {
		delete(c.records, id)
	}
}

// LastRefreshTime returns when id's record was last written, if cached.
func (c *Cache) LastRefreshTime(id string) (time.Time, bool) {
	rec, ok := c.Lookup(id)
	if !ok {
		return time.Time{}, false
	}
	return rec.LastUpdated, true
}

// Refreshing reports whether a refresh for id is currently in flight.
func (c *Cache) Refreshing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing[id] > 0
}

// AnyRefreshing reports whether any refresh is in flight.
func (c *Cache) AnyRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refreshing) > 0
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// store normalizes and writes a record fetched from the service. Band is
// always recomputed from the score here so it can never drift.
func (c *Cache) store(rec Record, source string) Record {
	rec.Score = score.Clamp(rec.Score)
	rec.Band = score.ClassifyBand(rec.Score)
	rec.LastUpdated = time.Now()
	rec.RefreshSource = source

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.EntityID] = rec
	return rec
}

func (c *Cache) trackRefresh(id string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing[id] += delta
	if c.refreshing[id] <= 0 {
		delete(c.refreshing, id)
	}
}
