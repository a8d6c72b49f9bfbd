package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/graph"
	"github.com/colonylab/nestfeed/internal/readstate"
)

// fakeSource is an in-memory event log answering (from, to] range queries
// newest-first, the way the indexer does.
type fakeSource struct {
	mu     sync.Mutex
	events []events.RawEvent
	err    error
	calls  int
}

func (f *fakeSource) RawEvents(_ context.Context, from, to int64) ([]events.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var out []events.RawEvent
	for _, e := range f.events {
		if e.Timestamp > from && e.Timestamp <= to {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (f *fakeSource) add(es ...events.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, es...)
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeGraph backs the eligibility oracle in tests.
type fakeGraph struct {
	mu           sync.Mutex
	involvements map[string][]string
	firstStake   map[string]int64
	display      map[string]graph.ProjectDisplay
	involveErr   error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		involvements: make(map[string][]string),
		firstStake:   make(map[string]int64),
		display:      make(map[string]graph.ProjectDisplay),
	}
}

func (f *fakeGraph) AccountInvolvements(_ context.Context, account string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.involveErr != nil {
		return nil, f.involveErr
	}
	return f.involvements[strings.ToLower(account)], nil
}

func (f *fakeGraph) FirstStakeTimestamp(_ context.Context, account string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.firstStake[strings.ToLower(account)]
	return ts, ok, nil
}

func (f *fakeGraph) ProjectDisplayData(_ context.Context, projects []string) ([]graph.ProjectDisplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []graph.ProjectDisplay
	for _, p := range projects {
		if d, ok := f.display[strings.ToLower(p)]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeGraph) setDisplay(project, name, logo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project = strings.ToLower(project)
	f.display[project] = graph.ProjectDisplay{Address: project, Name: name, Logo: logo}
}

func (f *fakeGraph) setInvolvements(account string, projects ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lowered := make([]string, len(projects))
	for i, p := range projects {
		lowered[i] = strings.ToLower(p)
	}
	f.involvements[strings.ToLower(account)] = lowered
}

// fixture is the wiring every feed test starts from.
type fixture struct {
	source *fakeSource
	graph  *fakeGraph
	chain  *eligibility.StaticReader
	oracle *eligibility.Oracle
	reads  readstate.Store
}

func newFixture() *fixture {
	g := newFakeGraph()
	chain := eligibility.NewStaticReader()
	return &fixture{
		source: &fakeSource{},
		graph:  g,
		chain:  chain,
		oracle: eligibility.NewOracle(chain, g),
		reads:  readstate.NewMemoryStore(),
	}
}

// project registers a project with resolvable display data.
func (fx *fixture) project(address string) {
	fx.chain.AddProject(address)
	fx.graph.setDisplay(address, "Project "+address, "https://cdn.example/"+address+".png")
}

// dealFlowEvent is an always-delivered project event, handy as filler.
func dealFlowEvent(ts int64, project string) events.RawEvent {
	return events.RawEvent{
		ID:          fmt.Sprintf("evt-%d", ts),
		Timestamp:   ts,
		ProjectNest: project,
		Kind:        events.KindNewProjectOnDealFlow,
	}
}

func projectEvent(ts int64, project string, kind events.Kind) events.RawEvent {
	return events.RawEvent{
		ID:          fmt.Sprintf("evt-%d", ts),
		Timestamp:   ts,
		ProjectNest: project,
		Kind:        kind,
	}
}

func customEvent(ts int64, project, body string) events.RawEvent {
	return events.RawEvent{
		ID:          fmt.Sprintf("evt-%d", ts),
		Timestamp:   ts,
		ProjectNest: project,
		Kind:        events.KindCustomNotification,
		Content:     &events.Content{ID: fmt.Sprintf("content-%d", ts), Body: body},
	}
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0).UTC() }
}

func timestamps(notifications []events.Notification) []int64 {
	out := make([]int64, len(notifications))
	for i, n := range notifications {
		out[i] = n.Timestamp
	}
	return out
}
