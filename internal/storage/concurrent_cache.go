package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/ranking"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// PlayerLoader computes a player summary on a cache miss
type PlayerLoader func(ctx context.Context, player types.AddressKey) (ranking.PlayerSummary, error)

// inflightPlayer is one summary being computed; waiters block on done
type inflightPlayer struct {
	done    chan struct{}
	summary ranking.PlayerSummary
	err     error
}

// PlayerCache serves player summaries from Redis and shares one computation
// between concurrent misses of the same address. Without a CacheService it
// only de-duplicates.
type PlayerCache struct {
	cache *CacheService

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	inflight *xsync.Map[types.AddressKey, *inflightPlayer]
}

// NewPlayerCache creates a player cache; cache may be nil
func NewPlayerCache(cache *CacheService) *PlayerCache {
	return &PlayerCache{
		cache:    cache,
		inflight: xsync.NewMap[types.AddressKey, *inflightPlayer](),
	}
}

// Get returns the summary of player, loading it at most once per miss
func (pc *PlayerCache) Get(ctx context.Context, player types.AddressKey, load PlayerLoader) (ranking.PlayerSummary, error) {
	if summary, ok := pc.lookup(ctx, player); ok {
		pc.cacheHits.Add(1)
		return summary, nil
	}
	pc.cacheMisses.Add(1)

	call, leader := pc.join(player)
	if !leader {
		select {
		case <-call.done:
			return call.summary, call.err
		case <-ctx.Done():
			return ranking.PlayerSummary{}, ctx.Err()
		}
	}

	call.summary, call.err = load(ctx, player)
	if call.err == nil {
		pc.store(ctx, player, call.summary)
	}
	pc.inflight.Delete(player)
	close(call.done)

	return call.summary, call.err
}

func (pc *PlayerCache) join(player types.AddressKey) (*inflightPlayer, bool) {
	var (
		call   *inflightPlayer
		leader bool
	)
	pc.inflight.Compute(player, func(old *inflightPlayer, loaded bool) (*inflightPlayer, xsync.ComputeOp) {
		if loaded {
			call = old
			return old, xsync.CancelOp
		}
		call = &inflightPlayer{done: make(chan struct{})}
		leader = true
		return call, xsync.UpdateOp
	})
	return call, leader
}

func (pc *PlayerCache) lookup(ctx context.Context, player types.AddressKey) (ranking.PlayerSummary, bool) {
	if pc.cache == nil {
		return ranking.PlayerSummary{}, false
	}
	var cached CachedPlayer
	found, err := pc.cache.Get(ctx, pc.cache.PlayerKey(player), &cached)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Player cache read failed")
		return ranking.PlayerSummary{}, false
	}
	return cached.Summary, found
}

func (pc *PlayerCache) store(ctx context.Context, player types.AddressKey, summary ranking.PlayerSummary) {
	if pc.cache == nil {
		return
	}
	cached := CachedPlayer{Summary: summary, CachedAt: time.Now().UTC()}
	if err := pc.cache.Set(ctx, pc.cache.PlayerKey(player), cached); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Player cache write failed")
	}
}

// Invalidate drops every cached summary, typically after a new view is published
func (pc *PlayerCache) Invalidate(ctx context.Context) error {
	if pc.cache == nil {
		return nil
	}
	return pc.cache.InvalidatePlayers(ctx)
}

// GetStats returns cache statistics
func (pc *PlayerCache) GetStats() *ConcurrentCacheStats {
	hits := pc.cacheHits.Load()
	misses := pc.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return &ConcurrentCacheStats{
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRate:       hitRate,
		InflightCount: pc.inflight.Size(),
	}
}

// ResetStats resets cache statistics
func (pc *PlayerCache) ResetStats() {
	pc.cacheHits.Store(0)
	pc.cacheMisses.Store(0)
}

// ConcurrentCacheStats represents cache statistics
type ConcurrentCacheStats struct {
	CacheHits     int64   `json:"cacheHits"`
	CacheMisses   int64   `json:"cacheMisses"`
	HitRate       float64 `json:"hitRate"` // percentage
	InflightCount int     `json:"inflightCount"`
}
