// Package cache implements the two-tier read-through cache that sits
// between the gateway and its upstream providers: a fast object tier
// (Redis) and a durable row tier (Postgres), queried in parallel, with
// best-effort write-through on miss.
package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/metrics"
)

// ObjectStore is the fast tier. Absence or misconfiguration is a soft
// failure of that branch only.
type ObjectStore interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RowStore is the durable tier.
type RowStore interface {
	GetRow(ctx context.Context, key string) (body []byte, fetchedAt time.Time, ok bool, err error)
	UpsertRow(ctx context.Context, key string, body []byte, fetchedAt time.Time) error
}

// FetchFunc produces a record on cache miss. The cache owns the decision
// to persist; fetchers never write the cache themselves.
type FetchFunc func(ctx context.Context) (*mediainfo.Record, error)

// Hit describes where a read was served from. FetchedAt is zero for the
// object tier, whose entries age out by TTL instead.
type Hit struct {
	Tier      string
	FetchedAt time.Time
}

const (
	TierObject = "redis"
	TierRow    = "postgres"
)

// TwoTier coordinates both stores. Either store may be nil; a nil store
// is a permanent soft failure of that branch.
type TwoTier struct {
	objects ObjectStore
	rows    RowStore
	// bypassed sources skip the cache entirely, read and write.
	bypass func(source string) bool
	log    zerolog.Logger
	sf     *singleflight.Group
}

type Option func(*TwoTier)

// WithSingleFlight deduplicates concurrent misses for the same key: one
// fetch runs, the others wait for its result. Off by default, per-key
// concurrency is expected to be low and a shared fetch couples unrelated
// requests' deadlines.
func WithSingleFlight() Option {
	return func(c *TwoTier) { c.sf = new(singleflight.Group) }
}

// New creates a two-tier cache. bypass may be nil (nothing bypassed).
func New(objects ObjectStore, rows RowStore, bypass func(string) bool, log zerolog.Logger, opts ...Option) *TwoTier {
	if bypass == nil {
		bypass = func(string) bool { return false }
	}
	c := &TwoTier{
		objects: objects,
		rows:    rows,
		bypass:  bypass,
		log:     log.With().Str("component", "cache").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tierResult struct {
	tier      string
	record    *mediainfo.Record
	fetchedAt time.Time
	ok        bool
}

// GetOrFetch serves the record for key, reading both tiers concurrently
// and falling through to fetch on miss. A usable hit from either tier
// short-circuits the fetch; when both tiers answer, the object tier wins
// the tie. On miss, only a success record is persisted, with the rendered
// format stripped, and tier write failures are logged but never fail the
// request.
//
// Without WithSingleFlight, no deduplication happens across concurrent
// misses for the same key: two simultaneous requests each fetch upstream
// and each write. Accepted while per-key concurrency stays low.
func (c *TwoTier) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (*mediainfo.Record, *Hit, error) {
	if c.bypass(key.Source) {
		rec, err := fetch(ctx)
		return rec, nil, err
	}
	if c.sf == nil {
		return c.getOrFetch(ctx, key, fetch)
	}

	type flightResult struct {
		rec *mediainfo.Record
		hit *Hit
	}
	v, err, shared := c.sf.Do(key.Object(), func() (any, error) {
		rec, hit, err := c.getOrFetch(ctx, key, fetch)
		if err != nil {
			return nil, err
		}
		return flightResult{rec, hit}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	res := v.(flightResult)
	rec := res.rec
	if shared {
		// Each caller gets its own copy; handlers mutate the record
		// when rendering the format.
		rec = cloneRecord(rec)
	}
	return rec, res.hit, nil
}

func cloneRecord(rec *mediainfo.Record) *mediainfo.Record {
	body, err := rec.CacheBody()
	if err != nil {
		return rec
	}
	copied, err := mediainfo.FromCacheBody(body)
	if err != nil {
		return rec
	}
	return copied
}

func (c *TwoTier) getOrFetch(ctx context.Context, key Key, fetch FetchFunc) (*mediainfo.Record, *Hit, error) {
	if rec, hit := c.read(ctx, key); rec != nil {
		metrics.CacheHits.WithLabelValues(hit.Tier).Inc()
		return rec, hit, nil
	}
	metrics.CacheMisses.Inc()

	rec, err := fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	if rec != nil && rec.Success {
		c.writeBack(ctx, key, rec)
	}
	return rec, nil, nil
}

// read issues both tier lookups concurrently and returns the first usable
// hit. Both lookups are always started; the slower branch is only awaited
// when the faster one missed. Branch errors degrade to misses.
func (c *TwoTier) read(ctx context.Context, key Key) (*mediainfo.Record, *Hit) {
	objCh := make(chan tierResult, 1)
	rowCh := make(chan tierResult, 1)

	go func() { objCh <- c.readObject(ctx, key) }()
	go func() { rowCh <- c.readRow(ctx, key) }()

	obj, objDone := tierResult{}, false
	row, rowDone := tierResult{}, false
	for !objDone || !rowDone {
		select {
		case obj = <-objCh:
			objDone = true
			if obj.ok {
				// Object tier is preferred outright, no need to wait.
				return obj.record, &Hit{Tier: obj.tier}
			}
		case row = <-rowCh:
			rowDone = true
			if row.ok && objDone {
				return row.record, &Hit{Tier: row.tier, FetchedAt: row.fetchedAt}
			}
			// Object tier still pending: hold the row hit so a
			// simultaneous object hit can take priority.
		}
	}
	if row.ok {
		return row.record, &Hit{Tier: row.tier, FetchedAt: row.fetchedAt}
	}
	return nil, nil
}

func (c *TwoTier) readObject(ctx context.Context, key Key) tierResult {
	if c.objects == nil {
		return tierResult{tier: TierObject}
	}
	body, ok, err := c.objects.Get(ctx, key.Object())
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.Object()).Msg("object tier read failed")
		return tierResult{tier: TierObject}
	}
	if !ok {
		return tierResult{tier: TierObject}
	}
	rec, err := mediainfo.FromCacheBody(body)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.Object()).Msg("object tier entry corrupt")
		return tierResult{tier: TierObject}
	}
	return tierResult{tier: TierObject, record: rec, ok: true}
}

func (c *TwoTier) readRow(ctx context.Context, key Key) tierResult {
	if c.rows == nil {
		return tierResult{tier: TierRow}
	}
	body, fetchedAt, ok, err := c.rows.GetRow(ctx, key.Row())
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.Row()).Msg("row tier read failed")
		return tierResult{tier: TierRow}
	}
	if !ok {
		return tierResult{tier: TierRow}
	}
	rec, err := mediainfo.FromCacheBody(body)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.Row()).Msg("row tier entry corrupt")
		return tierResult{tier: TierRow}
	}
	return tierResult{tier: TierRow, record: rec, fetchedAt: fetchedAt, ok: true}
}

// writeBack persists rec to both tiers independently. Failures are
// deliberate discards: the freshly fetched record is still returned to
// the caller, so a tier outage must never fail the request.
func (c *TwoTier) writeBack(ctx context.Context, key Key, rec *mediainfo.Record) {
	body, err := rec.CacheBody()
	if err != nil {
		c.log.Error().Err(err).Str("source", key.Source).Msg("serialize record for cache")
		return
	}
	if c.objects != nil {
		if err := c.objects.Set(ctx, key.Object(), body); err != nil {
			metrics.CacheWriteErrors.WithLabelValues(TierObject).Inc()
			c.log.Warn().Err(err).Str("key", key.Object()).Msg("object tier write failed")
		}
	}
	if c.rows != nil {
		if err := c.rows.UpsertRow(ctx, key.Row(), body, time.Now()); err != nil {
			metrics.CacheWriteErrors.WithLabelValues(TierRow).Inc()
			c.log.Warn().Err(err).Str("key", key.Row()).Msg("row tier write failed")
		}
	}
}

// Put overwrites both tiers for key. Used by the refresh worker, which
// re-fetches on its own schedule and must not read-through.
func (c *TwoTier) Put(ctx context.Context, key Key, rec *mediainfo.Record) {
	if rec == nil || !rec.Success || c.bypass(key.Source) {
		return
	}
	c.writeBack(ctx, key, rec)
}
