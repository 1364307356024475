// Package cache wraps the store's read path with a short-lived per-table
// cache and a bounded retry policy for transient failures. Writers must
// call Invalidate after a successful write; read-after-write consistency
// is the application's job, not the cache's.
package cache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ritetech/rcm-intake/internal/store"
	"github.com/ritetech/rcm-intake/pkg/metrics"
)

// DefaultTTL is the cache validity window per table.
const DefaultTTL = 60 * time.Second

// Backend is the cache storage behind the reader. Entries expire on
// their own; Delete only exists for explicit write-path invalidation.
type Backend interface {
	Get(ctx context.Context, table string) ([]store.Row, bool)
	Set(ctx context.Context, table string, rows []store.Row)
	Delete(ctx context.Context, table string)
}

type Options struct {
	// MaxAttempts bounds reads against a rate-limited store. The
	// default budget is 5 attempts with min(2^attempt, 10)s sleeps.
	MaxAttempts uint64
	// BackoffUnit scales the sleep schedule; tests shrink it.
	BackoffUnit time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{MaxAttempts: 5, BackoffUnit: time.Second}
	if o == nil {
		return out
	}
	if o.MaxAttempts > 0 {
		out.MaxAttempts = o.MaxAttempts
	}
	if o.BackoffUnit > 0 {
		out.BackoffUnit = o.BackoffUnit
	}
	return out
}

// Reader is the read-through cached view over a Store.
type Reader struct {
	store  store.Store
	cache  Backend
	opts   Options
	logger zerolog.Logger
}

func NewReader(st store.Store, cache Backend, opts *Options, logger zerolog.Logger) *Reader {
	return &Reader{
		store:  st,
		cache:  cache,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "cached_reader").Logger(),
	}
}

// Read returns the table's rows, serving from cache inside the TTL
// window. A miss delegates to the store with retry on transient errors.
func (r *Reader) Read(ctx context.Context, table string) ([]store.Row, error) {
	if rows, ok := r.cache.Get(ctx, table); ok {
		metrics.CacheHits.WithLabelValues(table).Inc()
		return rows, nil
	}
	metrics.CacheMisses.WithLabelValues(table).Inc()

	rows, err := r.readWithRetry(ctx, table)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, table, rows)
	return rows, nil
}

// Invalidate drops the cache entry so the next Read observes the store.
func (r *Reader) Invalidate(ctx context.Context, table string) {
	r.cache.Delete(ctx, table)
}

func (r *Reader) readWithRetry(ctx context.Context, table string) ([]store.Row, error) {
	var rows []store.Row
	attempt := 0

	op := func() error {
		attempt++
		var err error
		rows, err = r.store.ReadAll(ctx, table)
		if err == nil {
			return nil
		}
		if !store.IsTransient(err) {
			return backoff.Permanent(err)
		}
		metrics.StoreRetries.WithLabelValues(table).Inc()
		r.logger.Warn().Err(err).Str("table", table).Int("attempt", attempt).
			Msg("transient store read failure, backing off")
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newPowerBackOff(r.opts.BackoffUnit), r.opts.MaxAttempts-1),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return rows, nil
}

// powerBackOff sleeps unit*2^n after the n-th failure, capped at 10 units.
type powerBackOff struct {
	unit time.Duration
	n    uint
}

func newPowerBackOff(unit time.Duration) *powerBackOff {
	return &powerBackOff{unit: unit}
}

func (p *powerBackOff) NextBackOff() time.Duration {
	d := p.unit * time.Duration(1<<p.n)
	if cap := 10 * p.unit; d > cap {
		d = cap
	}
	p.n++
	return d
}

func (p *powerBackOff) Reset() { p.n = 0 }
