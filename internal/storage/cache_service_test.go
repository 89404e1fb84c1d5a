package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/ranking"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

func TestCacheServiceKeys(t *testing.T) {
	cs := NewCacheService(nil, time.Minute)

	assert.Equal(t, "view:latest", cs.ViewKey())
	assert.Equal(t, "player:"+string(normalize.MustAddress("0xABC")), cs.PlayerKey(normalize.MustAddress("0xABC")))
	assert.Equal(t, "view:a:b", cs.GenerateCacheKey(CacheKeyView, "A", "b"))
}

func TestCacheServiceRoundTrip(t *testing.T) {
	redisCache, mr := setupTestRedis(t)
	cs := NewCacheService(redisCache, 30*time.Second)
	ctx := testContext(t)

	player := normalize.MustAddress("0x1")
	summary := ranking.PlayerSummary{
		Player: player,
		Global: types.PlayerStats{Player: player, Earnings: 150, Rank: 2, CompletedCount: 3},
		Projects: map[string]types.PlayerStats{
			"ls": {Project: "ls", Player: player, Earnings: 150, Rank: 1, CompletedCount: 3, TotalAchievementCount: 8},
		},
	}

	var missing CachedPlayer
	found, err := cs.Get(ctx, cs.PlayerKey(player), &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cs.Set(ctx, cs.PlayerKey(player), CachedPlayer{Summary: summary, CachedAt: time.Now()}))
	assert.Equal(t, 30*time.Second, mr.TTL(cs.PlayerKey(player)))

	var cached CachedPlayer
	found, err = cs.Get(ctx, cs.PlayerKey(player), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, summary, cached.Summary)
}

func TestCacheServiceCorruptEntry(t *testing.T) {
	redisCache, mr := setupTestRedis(t)
	cs := NewCacheService(redisCache, time.Minute)

	require.NoError(t, mr.Set(cs.ViewKey(), "{not json"))

	var dest map[string]interface{}
	found, err := cs.Get(testContext(t), cs.ViewKey(), &dest)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCacheServiceInvalidatePlayers(t *testing.T) {
	redisCache, mr := setupTestRedis(t)
	cs := NewCacheService(redisCache, time.Minute)
	ctx := testContext(t)

	require.NoError(t, cs.Set(ctx, cs.ViewKey(), map[string]int{"players": 2}))
	require.NoError(t, cs.Set(ctx, cs.PlayerKey(normalize.MustAddress("0x1")), CachedPlayer{}))
	require.NoError(t, cs.Set(ctx, cs.PlayerKey(normalize.MustAddress("0x2")), CachedPlayer{}))

	require.NoError(t, cs.InvalidatePlayers(ctx))

	assert.True(t, mr.Exists(cs.ViewKey()))
	assert.False(t, mr.Exists(cs.PlayerKey(normalize.MustAddress("0x1"))))
	assert.False(t, mr.Exists(cs.PlayerKey(normalize.MustAddress("0x2"))))

	require.NoError(t, cs.Invalidate(ctx, cs.ViewKey()))
	assert.False(t, mr.Exists(cs.ViewKey()))
	assert.NoError(t, cs.Invalidate(ctx))
}
