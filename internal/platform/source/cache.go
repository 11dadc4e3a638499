package source

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/physio/internal/domain/evolution"
)

// DefaultCacheTTL is how long a fetched snapshot is served before the next
// request refetches it.
const DefaultCacheTTL = 10 * time.Minute

const snapshotKey = "snapshot"

// CachedSource serves the last successful snapshot of an upstream source for
// a TTL. Concurrent misses share one upstream fetch and failures are never
// cached.
type CachedSource struct {
	upstream evolution.RecordSource
	cache    *expirable.LRU[string, []evolution.PatientRecord]
	group    singleflight.Group
	logger   zerolog.Logger
	observer Observer
}

func NewCachedSource(upstream evolution.RecordSource, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		upstream: upstream,
		cache:    expirable.NewLRU[string, []evolution.PatientRecord](1, nil, ttl),
		logger:   logger.With().Str("component", "snapshot_cache").Logger(),
		observer: nopObserver{},
	}
}

func (c *CachedSource) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

func (c *CachedSource) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	if records, ok := c.cache.Get(snapshotKey); ok {
		c.observer.ObserveCache(true)
		return records, nil
	}
	c.observer.ObserveCache(false)

	// The shared fetch must outlive any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(snapshotKey, func() (interface{}, error) {
		if records, ok := c.cache.Get(snapshotKey); ok {
			return records, nil
		}
		records, err := c.upstream.Records(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(snapshotKey, records)
		c.logger.Info().Int("records", len(records)).Msg("snapshot refreshed")
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error().Err(res.Err).Msg("snapshot refresh failed")
			return nil, res.Err
		}
		return res.Val.([]evolution.PatientRecord), nil
	}
}

// Invalidate drops the cached snapshot so the next call refetches.
func (c *CachedSource) Invalidate() {
	c.cache.Purge()
}
