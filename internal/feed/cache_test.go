package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colonylab/nestfeed/internal/events"
)

func TestCacheInitializeAndRangeQueries(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	fx.source.add(
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
		dealFlowEvent(300, "0xNest1"),
	)

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	require.Equal(t, 3, cache.Len())
	require.Equal(t, int64(1000), cache.LastSync())
	require.Equal(t, []int64{300, 200, 100}, timestamps(cache.All()))

	// (from, to] is exclusive below, inclusive above
	require.Equal(t, []int64{300, 200}, timestamps(cache.Notifications(100, 300)))
	require.Equal(t, []int64{100}, timestamps(cache.Notifications(50, 100)))
	require.Empty(t, cache.Notifications(300, 300))
	require.Empty(t, cache.Notifications(400, 100))

	require.Equal(t, []int64{300, 200}, timestamps(cache.NotificationsSince(100)))
	require.Equal(t, []int64{200, 100}, timestamps(cache.NotificationsTo(200)))
}

func TestCacheInitializeFetchFailureStartsEmpty(t *testing.T) {
	fx := newFixture()
	fx.source.setErr(errors.New("indexer down"))

	cache := NewCache(fx.source, fx.oracle, WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	require.Zero(t, cache.Len())
	require.Empty(t, cache.NotificationsSince(0))
	// the high-water mark stays at the epoch so the next sync retries the
	// whole window
	require.Equal(t, DefaultEpoch, cache.LastSync())
}

func TestCacheSyncRecoversHistoryAfterFailedInitialize(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	fx.source.add(dealFlowEvent(500, "0xNest1"))
	fx.source.setErr(errors.New("indexer down"))

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())
	require.Zero(t, cache.Len())
	require.Equal(t, int64(50), cache.LastSync())

	fx.source.setErr(nil)
	cache = withClock(cache, 2000)

	require.True(t, cache.Sync(context.Background()))
	require.Equal(t, []int64{500}, timestamps(cache.All()))
	require.Equal(t, int64(500), cache.LastSync())
}

func TestCacheSyncPrependsAndAdvancesHighWaterMark(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	fx.source.add(dealFlowEvent(500, "0xNest1"))

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())
	require.Equal(t, 1, cache.Len())

	fx.source.add(dealFlowEvent(1200, "0xNest1"), dealFlowEvent(1500, "0xNest1"))
	cache = withClock(cache, 2000)

	require.True(t, cache.Sync(context.Background()))
	require.Equal(t, []int64{1500, 1200, 500}, timestamps(cache.All()))
	require.Equal(t, int64(1500), cache.LastSync())

	// nothing past the mark, second pass is a no-op
	require.False(t, cache.Sync(context.Background()))
	require.Equal(t, 3, cache.Len())
}

func TestCacheSyncSwallowsFetchErrors(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	fx.source.add(dealFlowEvent(500, "0xNest1"))

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	fx.source.setErr(errors.New("indexer down"))
	cache = withClock(cache, 2000)

	require.False(t, cache.Sync(context.Background()))
	require.Equal(t, 1, cache.Len())
	require.Equal(t, int64(1000), cache.LastSync())
}

func TestCacheExcludesUnresolvedProjects(t *testing.T) {
	fx := newFixture()
	fx.project("0xKnown")
	fx.chain.AddProject("0xGhost") // on chain but no display data indexed
	fx.source.add(
		dealFlowEvent(100, "0xKnown"),
		dealFlowEvent(200, "0xGhost"),
	)

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	require.Equal(t, []int64{100}, timestamps(cache.All()))
}

func TestCacheKeepsGlobalCustomNotifications(t *testing.T) {
	fx := newFixture()
	fx.source.add(customEvent(100, "", "Maintenance window tonight"))

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	all := cache.All()
	require.Len(t, all, 1)
	require.Nil(t, all[0].Project)
	require.Equal(t, "Maintenance window tonight", all[0].Message)
}

func TestCacheDropsMalformedEventsIndividually(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	fx.source.add(
		dealFlowEvent(100, "0xNest1"),
		events.RawEvent{ID: "bad", Timestamp: 200, ProjectNest: "0xNest1", Kind: events.Kind(42)},
		dealFlowEvent(300, "0xNest1"),
	)

	cache := NewCache(fx.source, fx.oracle, WithEpoch(50), WithCacheClock(fixedClock(1000)))
	cache.Initialize(context.Background())

	require.Equal(t, []int64{300, 100}, timestamps(cache.All()))
}

// withClock swaps the cache's clock between phases of a test.
func withClock(c *Cache, unix int64) *Cache {
	c.now = fixedClock(unix)
	return c
}
