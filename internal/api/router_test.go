package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/colonylab/nestfeed/internal/app"
	testutil "github.com/colonylab/nestfeed/internal/database/testutil"
	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/feed"
	"github.com/colonylab/nestfeed/internal/graph"
	"github.com/colonylab/nestfeed/internal/readstate"
	"github.com/colonylab/nestfeed/internal/realtime"
	"github.com/colonylab/nestfeed/pkg/response"
)

type stubSource struct {
	events []events.RawEvent
}

func (s *stubSource) RawEvents(_ context.Context, from, to int64) ([]events.RawEvent, error) {
	var out []events.RawEvent
	for _, e := range s.events {
		if e.Timestamp > from && e.Timestamp <= to {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

type stubGraph struct {
	involvements map[string][]string
	firstStake   map[string]int64
	display      map[string]graph.ProjectDisplay
}

func (s *stubGraph) AccountInvolvements(_ context.Context, account string) ([]string, error) {
	return s.involvements[strings.ToLower(account)], nil
}

func (s *stubGraph) FirstStakeTimestamp(_ context.Context, account string) (int64, bool, error) {
	ts, ok := s.firstStake[strings.ToLower(account)]
	return ts, ok, nil
}

func (s *stubGraph) ProjectDisplayData(_ context.Context, projects []string) ([]graph.ProjectDisplay, error) {
	var out []graph.ProjectDisplay
	for _, p := range projects {
		if d, ok := s.display[strings.ToLower(p)]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	reads, err := readstate.NewGormStore(db)
	require.NoError(t, err)

	chain := eligibility.NewStaticReader()
	chain.AddProject("0xnest1")

	g := &stubGraph{
		involvements: map[string][]string{},
		firstStake:   map[string]int64{"0xacct": 50},
		display: map[string]graph.ProjectDisplay{
			"0xnest1": {Address: "0xnest1", Name: "Nest One", Logo: "https://cdn.example/nest1.png"},
		},
	}
	oracle := eligibility.NewOracle(chain, g)

	source := &stubSource{events: []events.RawEvent{
		{ID: "evt-100", Timestamp: 100, ProjectNest: "0xNest1", Kind: events.KindNewProjectOnDealFlow},
		{ID: "evt-200", Timestamp: 200, ProjectNest: "0xNest1", Kind: events.KindNestIsOpen},
	}}

	clock := func() time.Time { return time.Unix(1000, 0).UTC() }
	cache := feed.NewCache(source, oracle, feed.WithEpoch(50), feed.WithCacheClock(clock))
	cache.Initialize(context.Background())

	service := feed.NewService(cache, oracle, reads,
		feed.WithServiceClock(clock),
		feed.WithViewOptions(feed.WithViewClock(clock)))

	hub := realtime.NewHub()
	streams := realtime.NewStreamManager(hub, func(ctx context.Context, account string, hook feed.StreamHook) (*feed.Stream, error) {
		return feed.NewStream(ctx, account, cache, oracle, reads, hook, feed.StreamOptions{
			SyncInterval: time.Hour,
			Clock:        clock,
		})
	})
	t.Cleanup(streams.Shutdown)

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)

	router, err := NewRouter(db, service, hub, streams, cfg)
	require.NoError(t, err)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRouterHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "nestfeed_")
}

func TestRouterNextPageFlow(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/accounts/0xAcct/notifications/next?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)

	data := payload.Data.(map[string]any)
	require.Equal(t, float64(1), data["count"])
	page := data["notifications"].([]any)
	first := page[0].(map[string]any)
	require.Equal(t, float64(200), first["timestamp"])
	require.Equal(t, "NEST is now open", first["message"])
	project := first["project"].(map[string]any)
	require.Equal(t, "Nest One", project["name"])
}

func TestRouterUnreadCountAndMarkRead(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/accounts/0xAcct/notifications/unread-count", "")
	require.Equal(t, http.StatusOK, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, float64(2), payload.Data.(map[string]any)["unread"])

	w = doRequest(router, http.MethodPost, "/api/accounts/0xAcct/notifications/read", `{"timestamp":100}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/accounts/0xAcct/notifications/unread-count", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, float64(1), payload.Data.(map[string]any)["unread"])

	w = doRequest(router, http.MethodPost, "/api/accounts/0xAcct/notifications/read-all", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/accounts/0xAcct/notifications/unread-count", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, float64(0), payload.Data.(map[string]any)["unread"])
}

func TestRouterMarkReadValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/accounts/0xAcct/notifications/read", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "BAD_REQUEST", payload.Error.Code)
}

func TestRouterSyncEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/accounts/0xAcct/notifications/sync", "")
	require.Equal(t, http.StatusOK, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Equal(t, false, payload.Data.(map[string]any)["new_notifications"])
}

func TestRouterStreamRequiresAccount(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/notifications/stream", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
