package warmth

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxChunk bounds the number of IDs per bulk request to what the
// scoring service accepts.
const DefaultMaxChunk = 200

// BulkOptions control a bulk refresh.
type BulkOptions struct {
	Force    bool
	TTL      time.Duration
	MaxChunk int
	Source   string
}

func (o BulkOptions) ttl() time.Duration {
	if o.TTL > 0 {
		return o.TTL
	}
	return DefaultTTL
}

func (o BulkOptions) maxChunk() int {
	if o.MaxChunk > 0 {
		return o.MaxChunk
	}
	return DefaultMaxChunk
}

// GetBulk resolves warmth for a set of contacts: fresh cached records are
// served locally, the rest are fetched in parallel chunks. Each chunk is
// handled in isolation — a failed chunk contributes nothing to the result
// and never aborts or taints the others, so the returned map simply omits
// the IDs the service could not resolve. Those IDs keep whatever cached
// value they had.
func (c *Cache) GetBulk(ctx context.Context, ids []string, opts BulkOptions) map[string]Record {
	out := make(map[string]Record)

	var needsFetch, inFlight []string
	seen := make(map[string]bool, len(ids))
	now := time.Now()

	c.mu.Lock()
	for _, id := range ids {
		if strings.TrimSpace(id) == "" || seen[id] {
			continue
		}
		seen[id] = true

		rec, cached := c.records[id]
		switch {
		case cached && !opts.Force && rec.Fresh(opts.ttl(), now):
			out[id] = rec
		case c.refreshing[id] > 0:
			// A single-entity refresh is already underway; join it rather
			// than fetching the same ID twice.
			inFlight = append(inFlight, id)
		default:
			needsFetch = append(needsFetch, id)
		}
	}
	c.mu.Unlock()

	var (
		g  errgroup.Group
		mu sync.Mutex // guards out from here on
	)

	for _, id := range inFlight {
		g.Go(func() error {
			rec, err := c.GetOrRefresh(ctx, id, Options{TTL: opts.ttl(), Source: opts.Source})
			if err != nil {
				c.log.Warn().Err(err).Str("id", id).Msg("bulk: joined refresh failed")
				return nil
			}
			mu.Lock()
			out[id] = rec
			mu.Unlock()
			return nil
		})
	}

	for _, chunk := range chunkIDs(needsFetch, opts.maxChunk()) {
		g.Go(func() error {
			c.trackChunk(chunk, 1)
			defer c.trackChunk(chunk, -1)

			entries, err := c.fetcher.RecomputeBulk(ctx, chunk, opts.Force)
			if err != nil {
				// Chunk isolation: log and move on, prior cached values for
				// these IDs stay readable.
				c.log.Warn().Err(err).Int("ids", len(chunk)).Msg("bulk: chunk failed")
				return nil
			}
			for _, e := range entries {
				if e.Err != "" {
					c.log.Debug().Str("id", e.EntityID).Str("error", e.Err).Msg("bulk: entity failed")
					continue
				}
				rec := c.store(Record{
					EntityID:          e.EntityID,
					Score:             e.Score,
					Mode:              e.Mode,
					LastInteractionAt: e.LastInteractionAt,
				}, opts.Source)
				mu.Lock()
				out[rec.EntityID] = rec
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return out
}

// chunkIDs splits ids into slices of at most size entries.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func (c *Cache) trackChunk(ids []string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.refreshing[id] += delta
		if c.refreshing[id] <= 0 {
			delete(c.refreshing, id)
		}
	}
}
