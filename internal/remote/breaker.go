package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/relatia/warmth/internal/score"
	"github.com/relatia/warmth/internal/warmth"
)

// Breaker wraps Client with a circuit breaker so a struggling scoring
// service sheds load instead of stacking timeouts. An open circuit surfaces
// as a TransportError, which the cache layer treats like any other network
// failure: the in-flight slot settles and cached values stay readable.
type Breaker struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps client. The circuit opens after a 60% failure rate over
// at least 5 requests, and probes recovery after 30 seconds.
func NewBreaker(client *Client, log zerolog.Logger) *Breaker {
	blog := log.With().Str("component", "remote-breaker").Logger()
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "warmth-scoring",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			blog.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit state changed")
		},
	})
	return &Breaker{client: client, cb: cb}
}

// execute runs fn through the breaker, normalizing breaker rejections into
// the transport taxonomy.
func (b *Breaker) execute(op string, fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &warmth.TransportError{Op: op, Err: err}
		}
		return nil, err
	}
	return v, nil
}

func cast[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", v)
	}
	return typed, nil
}

func (b *Breaker) Recompute(ctx context.Context, id string, force bool) (warmth.Record, error) {
	return cast[warmth.Record](b.execute("recompute", func() (any, error) {
		return b.client.Recompute(ctx, id, force)
	}))
}

func (b *Breaker) RecomputeBulk(ctx context.Context, ids []string, force bool) ([]warmth.BulkEntry, error) {
	return cast[[]warmth.BulkEntry](b.execute("recompute bulk", func() (any, error) {
		return b.client.RecomputeBulk(ctx, ids, force)
	}))
}

func (b *Breaker) SwitchMode(ctx context.Context, id, mode string) (warmth.ModeSwitch, error) {
	return cast[warmth.ModeSwitch](b.execute("switch mode", func() (any, error) {
		return b.client.SwitchMode(ctx, id, mode)
	}))
}

func (b *Breaker) Summary(ctx context.Context) (warmth.Summary, error) {
	return cast[warmth.Summary](b.execute("summary", func() (any, error) {
		return b.client.Summary(ctx)
	}))
}

func (b *Breaker) Modes(ctx context.Context) (score.Modes, error) {
	return cast[score.Modes](b.execute("modes", func() (any, error) {
		return b.client.Modes(ctx)
	}))
}
