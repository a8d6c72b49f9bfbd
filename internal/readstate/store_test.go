package readstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colonylab/nestfeed/internal/database/testutil"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	gormStore, err := NewGormStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)

	return map[string]Store{
		"gorm":   gormStore,
		"memory": NewMemoryStore(),
	}
}

func TestSeenRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.AddSeen(ctx, "0xAcc", 100, 200))
			// duplicate marking is a no-op
			require.NoError(t, store.AddSeen(ctx, "0xacc", 200))

			seen, err := store.HasSeen(ctx, "0xACC", []int64{100, 200, 300})
			require.NoError(t, err)
			require.Equal(t, map[int64]bool{100: true, 200: true, 300: false}, seen)
		})
	}
}

func TestSeenIsPerAccount(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.AddSeen(ctx, "0xalice", 100))

			seen, err := store.HasSeen(ctx, "0xbob", []int64{100})
			require.NoError(t, err)
			require.False(t, seen[100])
		})
	}
}

func TestLastSeenMarker(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			marker, err := store.LastSeenMarker(ctx, "0xacc")
			require.NoError(t, err)
			require.Zero(t, marker)

			require.NoError(t, store.SetLastSeenMarker(ctx, "0xacc", 500))
			require.NoError(t, store.SetLastSeenMarker(ctx, "0xacc", 900))

			marker, err = store.LastSeenMarker(ctx, "0xAcc")
			require.NoError(t, err)
			require.EqualValues(t, 900, marker)
		})
	}
}

func TestClearForgetsAccount(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.AddSeen(ctx, "0xacc", 100))
			require.NoError(t, store.SetLastSeenMarker(ctx, "0xacc", 100))
			require.NoError(t, store.Clear(ctx, "0xacc"))

			seen, err := store.HasSeen(ctx, "0xacc", []int64{100})
			require.NoError(t, err)
			require.False(t, seen[100])

			marker, err := store.LastSeenMarker(ctx, "0xacc")
			require.NoError(t, err)
			require.Zero(t, marker)
		})
	}
}

func TestPruneBefore(t *testing.T) {
	store, err := NewGormStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AddSeen(ctx, "0xacc", 100, 200, 300))

	pruned, err := store.PruneBefore(ctx, 250)
	require.NoError(t, err)
	require.EqualValues(t, 2, pruned)

	seen, err := store.HasSeen(ctx, "0xacc", []int64{100, 200, 300})
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{100: false, 200: false, 300: true}, seen)
}
