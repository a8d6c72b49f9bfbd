package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/colonylab/nestfeed/pkg/errors"

	"github.com/colonylab/nestfeed/internal/events"
)

func seedView(t *testing.T, fx *fixture, account string, seed []events.Notification, opts ...ViewOption) *AccountView {
	t.Helper()

	filter := NewFilter(fx.oracle, fx.reads)
	opts = append([]ViewOption{WithViewClock(fixedClock(1000))}, opts...)
	view, err := NewAccountView(context.Background(), account, seed, filter, fx.oracle, fx.reads, DefaultEpoch, opts...)
	require.NoError(t, err)
	return view
}

func TestNewAccountViewRequiresAccount(t *testing.T) {
	fx := newFixture()
	filter := NewFilter(fx.oracle, fx.reads)

	_, err := NewAccountView(context.Background(), "  ", nil, filter, fx.oracle, fx.reads, DefaultEpoch)
	require.ErrorIs(t, err, apperrors.ErrAccountRequired)
}

func TestAccountViewPaginationAdvancesAndPins(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	seed := classify(t, fx,
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
		dealFlowEvent(300, "0xNest1"),
		dealFlowEvent(400, "0xNest1"),
		dealFlowEvent(500, "0xNest1"),
	)

	view := seedView(t, fx, testAccount, seed)
	require.Equal(t, 5, view.Len())

	require.Equal(t, []int64{500, 400}, timestamps(view.NextPage(2)))
	require.Equal(t, []int64{300, 200}, timestamps(view.NextPage(2)))
	require.Equal(t, []int64{100}, timestamps(view.NextPage(2)))

	// exhausted; the cursor pins to the epoch and stays there
	require.Empty(t, view.NextPage(2))
	require.Empty(t, view.NextPage(2))

	view.ResetCursor()
	require.Equal(t, []int64{500, 400}, timestamps(view.NextPage(2)))
}

func TestAccountViewRetentionLimit(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	seed := classify(t, fx,
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
		dealFlowEvent(300, "0xNest1"),
	)

	view := seedView(t, fx, testAccount, seed, WithViewLimit(2))
	require.Equal(t, 2, view.Len())
	require.Equal(t, []int64{300, 200}, timestamps(view.Notifications(0, 1000)))

	// the cap holds across later sync passes, keeping the newest entries
	added, err := view.SyncNotifications(context.Background(), classify(t, fx,
		dealFlowEvent(400, "0xNest1"),
	))
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, 2, view.Len())
	require.Equal(t, []int64{400, 300}, timestamps(view.Notifications(0, 1000)))
}

func TestAccountViewMarkReadRoundTrip(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	seed := classify(t, fx,
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
	)

	view := seedView(t, fx, testAccount, seed)
	require.Equal(t, 2, view.UnreadCount())

	require.NoError(t, view.MarkRead(context.Background(), 100))
	require.Equal(t, 1, view.UnreadCount())

	// a rebuilt view sees the persisted read state
	rebuilt := seedView(t, fx, testAccount, seed)
	require.Equal(t, 1, rebuilt.UnreadCount())
}

func TestAccountViewMarkAllRead(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	seed := classify(t, fx,
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
		dealFlowEvent(300, "0xNest1"),
	)

	view := seedView(t, fx, testAccount, seed)
	require.NoError(t, view.MarkAllRead(context.Background()))
	require.Zero(t, view.UnreadCount())

	rebuilt := seedView(t, fx, testAccount, seed)
	require.Zero(t, rebuilt.UnreadCount())
}

func TestAccountViewMarkReadToMovesMarker(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	seed := classify(t, fx,
		dealFlowEvent(100, "0xNest1"),
		dealFlowEvent(200, "0xNest1"),
		dealFlowEvent(300, "0xNest1"),
	)

	view := seedView(t, fx, testAccount, seed)
	require.NoError(t, view.MarkReadTo(context.Background(), 200))
	require.Equal(t, 1, view.UnreadCount())

	// the marker never moves backwards
	require.NoError(t, view.MarkReadTo(context.Background(), 150))
	marker, err := fx.reads.LastSeenMarker(context.Background(), testAccountLower)
	require.NoError(t, err)
	require.Equal(t, int64(200), marker)

	// rebuilt views honour the marker without per-timestamp records
	rebuilt := seedView(t, fx, testAccount, seed)
	require.Equal(t, 1, rebuilt.UnreadCount())
}

func TestAccountViewSyncReportsAdded(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	view := seedView(t, fx, testAccount, nil)
	require.Zero(t, view.Len())

	added, err := view.SyncNotifications(context.Background(), classify(t, fx, dealFlowEvent(600, "0xNest1")))
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, 1, view.Len())

	added, err = view.SyncNotifications(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, added)
}

func TestAccountViewInvolvementFetchFailureIsNoNewData(t *testing.T) {
	fx := newFixture()
	fx.project("0xNest1")
	view := seedView(t, fx, testAccount, nil)

	fx.graph.mu.Lock()
	fx.graph.involveErr = graphDownError{}
	fx.graph.mu.Unlock()

	added, err := view.SyncNotifications(context.Background(), classify(t, fx, dealFlowEvent(600, "0xNest1")))
	require.NoError(t, err)
	require.False(t, added)
	require.Zero(t, view.Len())
}

type graphDownError struct{}

func (graphDownError) Error() string { return "graph unreachable" }
