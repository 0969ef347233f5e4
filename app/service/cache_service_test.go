package service

import (
	"testing"
	"time"

	"media-flow/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutAndLookup(t *testing.T) {
	cache := NewCacheService(newTestDB(t), newTestLogger())

	// 未命中返回 (nil, nil)
	entry, err := cache.Lookup("abc123")
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, created, err := cache.Put(&model.ContentHashCache{
		ContentHash: "abc123",
		ExternalID:  "ext-1",
		LibraryName: "movies",
		FileName:    "a.mp4",
		ByteSize:    42,
	})
	require.NoError(t, err)
	assert.True(t, created)

	entry, err = cache.Lookup("abc123")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "ext-1", entry.ExternalID)
	assert.Equal(t, int64(42), entry.ByteSize)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestCacheFirstWriteWins(t *testing.T) {
	cache := NewCacheService(newTestDB(t), newTestLogger())

	_, created, err := cache.Put(&model.ContentHashCache{ContentHash: "h1", ExternalID: "ext-1"})
	require.NoError(t, err)
	require.True(t, created)

	// 同一哈希的并发写入只保留首条记录
	result, created, err := cache.Put(&model.ContentHashCache{ContentHash: "h1", ExternalID: "ext-2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ext-1", result.ExternalID)

	entry, err := cache.Lookup("h1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", entry.ExternalID)
}

func TestCacheRemoveStaleEntries(t *testing.T) {
	db := newTestDB(t)
	cache := NewCacheService(db, newTestLogger())

	_, _, err := cache.Put(&model.ContentHashCache{ContentHash: "fresh", ExternalID: "ext-1"})
	require.NoError(t, err)
	_, _, err = cache.Put(&model.ContentHashCache{
		ContentHash: "stale",
		ExternalID:  "ext-2",
		CachedAt:    time.Now().AddDate(0, 0, -200),
	})
	require.NoError(t, err)

	removed, err := cache.RemoveStaleEntries(180)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// 过期条目已删除，新条目保留
	entry, err := cache.Lookup("stale")
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = cache.Lookup("fresh")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestCacheRemoveStaleEntriesDisabled(t *testing.T) {
	cache := NewCacheService(newTestDB(t), newTestLogger())

	_, _, err := cache.Put(&model.ContentHashCache{ContentHash: "h1", ExternalID: "ext-1"})
	require.NoError(t, err)

	// 保留期为0时不清理
	removed, err := cache.RemoveStaleEntries(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCacheStats(t *testing.T) {
	cache := NewCacheService(newTestDB(t), newTestLogger())

	_, _, err := cache.Put(&model.ContentHashCache{ContentHash: "h1", ExternalID: "ext-1"})
	require.NoError(t, err)

	cache.Lookup("h1")   // 命中
	cache.Lookup("miss") // 未命中

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
