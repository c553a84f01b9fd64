package lookup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/metalookup-go/internal/db"
)

// ==========================================================================
// MemoryCache
// ==========================================================================

func TestMemoryCache_GetPut(t *testing.T) {
	cache := NewMemoryCache(0)
	fetched := time.Now()

	_, ok := cache.Get("k")
	require.False(t, ok)

	cache.Put("k", Entry{Payload: []byte("v"), FetchedAt: fetched, TTL: time.Hour})
	entry, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", string(entry.Payload))
	require.True(t, entry.FreshAt(fetched.Add(59*time.Minute), time.Hour))
	require.False(t, entry.FreshAt(fetched.Add(time.Hour), time.Hour))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMemoryCache_BoundedEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewMemoryCache(2)
	now := time.Now()

	cache.Put("a", Entry{Payload: []byte("a"), FetchedAt: now, TTL: time.Hour})
	cache.Put("b", Entry{Payload: []byte("b"), FetchedAt: now, TTL: time.Hour})
	_, _ = cache.Get("a")
	cache.Put("c", Entry{Payload: []byte("c"), FetchedAt: now, TTL: time.Hour})

	_, ok := cache.Get("b")
	require.False(t, ok)
	_, ok = cache.Get("a")
	require.True(t, ok)
	_, ok = cache.Get("c")
	require.True(t, ok)
	require.Equal(t, 2, cache.Len())
}

func TestMemoryCache_PruneExpired(t *testing.T) {
	for _, capacity := range []int{0, 10} {
		cache := NewMemoryCache(capacity)
		now := time.Now()

		cache.Put("old", Entry{FetchedAt: now.Add(-2 * time.Hour), TTL: time.Hour})
		cache.Put("new", Entry{FetchedAt: now.Add(-time.Minute), TTL: time.Hour})

		removed, err := cache.PruneExpired(now)
		require.NoError(t, err)
		require.Equal(t, int64(1), removed)
		require.Equal(t, 1, cache.Len())
		_, ok := cache.Get("new")
		require.True(t, ok)
	}
}

func TestTieredCache_PromotesBackHits(t *testing.T) {
	front := NewMemoryCache(0)
	back := NewMemoryCache(0)
	tiered := NewTieredCache(front, back)
	now := time.Now()

	back.Put("k", Entry{Payload: []byte("v"), FetchedAt: now, TTL: time.Hour})
	entry, ok := tiered.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", string(entry.Payload))

	_, ok = front.Get("k")
	require.True(t, ok)

	tiered.Put("j", Entry{Payload: []byte("w"), FetchedAt: now, TTL: time.Hour})
	_, ok = front.Get("j")
	require.True(t, ok)
	_, ok = back.Get("j")
	require.True(t, ok)
}

// ==========================================================================
// CacheStore
// ==========================================================================

func newTestStore(t *testing.T) *CacheStore {
	t.Helper()
	pair, err := db.Init(filepath.Join(t.TempDir(), "lookup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return NewCacheStore(pair, nil)
}

func TestCacheStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	fetched := time.UnixMilli(time.Now().UnixMilli())

	_, ok, err := store.Get("https://mb.test/ws/2/artist/1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ChannelMetadata, "https://mb.test/ws/2/artist/1", Entry{
		Payload: []byte(`{"id":"1"}`), FetchedAt: fetched, TTL: 30 * time.Minute,
	}))
	entry, ok, err := store.Get("https://mb.test/ws/2/artist/1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"1"}`, string(entry.Payload))
	require.True(t, fetched.Equal(entry.FetchedAt))
	require.Equal(t, 30*time.Minute, entry.TTL)

	// Last writer wins.
	require.NoError(t, store.Put(ChannelMetadata, "https://mb.test/ws/2/artist/1", Entry{
		Payload: []byte(`{"id":"2"}`), FetchedAt: fetched, TTL: time.Hour,
	}))
	entry, _, err = store.Get("https://mb.test/ws/2/artist/1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"2"}`, string(entry.Payload))

	count, err := store.Count(ChannelMetadata)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCacheStore_PruneExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.Put(ChannelMetadata, "old", Entry{Payload: []byte("{}"), FetchedAt: now.Add(-2 * time.Hour), TTL: time.Hour}))
	require.NoError(t, store.Put(ChannelCoverArt, "new", Entry{Payload: []byte("{}"), FetchedAt: now, TTL: time.Hour}))

	removed, err := store.PruneExpired(now)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	total, err := store.Count("")
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestCacheStore_BacksChannel(t *testing.T) {
	store := newTestStore(t)
	transport := newScriptedTransport()
	cache := NewTieredCache(NewMemoryCache(0), store.ForChannel(ChannelMetadata))
	ch := newTestChannel(t, transport, cache, ChannelConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := waitResolved(t, ch.Enqueue(ctx, Request{Key: "artist/1"}))
	require.NoError(t, err)

	count, err := store.Count(ChannelMetadata)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// A second channel over the same store sees the persisted entry.
	restarted := newTestChannel(t, transport, store.ForChannel(ChannelMetadata), ChannelConfig{})
	resp, err := waitResolved(t, restarted.Enqueue(ctx, Request{Key: "artist/1"}))
	require.NoError(t, err)
	require.True(t, resp.FromCache)
	require.Equal(t, 1, transport.callCount())
}

// ==========================================================================
// Pruner
// ==========================================================================

func TestPruner_RunOnceAcrossTargets(t *testing.T) {
	store := newTestStore(t)
	memory := NewMemoryCache(0)
	now := time.Now()

	require.NoError(t, store.Put(ChannelMetadata, "old", Entry{Payload: []byte("{}"), FetchedAt: now.Add(-3 * time.Hour), TTL: time.Hour}))
	memory.Put("old", Entry{FetchedAt: now.Add(-3 * time.Hour), TTL: time.Hour})
	memory.Put("fresh", Entry{FetchedAt: now, TTL: time.Hour})

	pruner := NewPruner("", nil, store, memory)
	require.Equal(t, int64(2), pruner.RunOnce())

	stats := pruner.Stats()
	require.Equal(t, int64(2), stats.Pruned)
	require.True(t, stats.Healthy)
	require.False(t, stats.LastRun.IsZero())
}

func TestPruner_StartRejectsBadSchedule(t *testing.T) {
	pruner := NewPruner("every tuesday-ish", nil)
	require.Error(t, pruner.Start())
	pruner.Stop()
}

func TestPruner_StartStop(t *testing.T) {
	memory := NewMemoryCache(0)
	memory.Put("old", Entry{FetchedAt: time.Now().Add(-2 * time.Hour), TTL: time.Hour})

	pruner := NewPruner("@every 1h", nil, memory)
	require.NoError(t, pruner.Start())
	pruner.Stop()

	require.Equal(t, 0, memory.Len())
}
