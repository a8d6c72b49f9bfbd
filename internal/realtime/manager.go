package realtime

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/feed"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/logger"
)

// StreamFactory builds a push stream for an account with the given delivery
// hook. The manager supplies a hook that broadcasts through the hub.
type StreamFactory func(ctx context.Context, account string, hook feed.StreamHook) (*feed.Stream, error)

// StreamManager shares one feed stream per account across all of the
// account's websocket connections. Streams are reference counted: the first
// subscriber starts the account's sync loop, the last one stops it.
type StreamManager struct {
	hub     *Hub
	factory StreamFactory
	log     *zap.Logger

	mu      sync.Mutex
	streams map[string]*managedStream
}

type managedStream struct {
	stream *feed.Stream
	refs   int
}

func NewStreamManager(hub *Hub, factory StreamFactory) *StreamManager {
	m := &StreamManager{
		hub:     hub,
		factory: factory,
		log:     logger.WithModule("realtime.streams"),
		streams: make(map[string]*managedStream),
	}
	if hub != nil {
		hub.HandleAction("load_more", m.loadMore)
	}
	return m
}

// loadMore reveals one more page on the account's stream; the stream's hook
// broadcasts the grown window back through the hub.
func (m *StreamManager) loadMore(account string) {
	account = strings.ToLower(strings.TrimSpace(account))

	m.mu.Lock()
	managed, ok := m.streams[account]
	m.mu.Unlock()
	if !ok {
		return
	}

	if _, err := managed.stream.LoadMore(); err != nil {
		m.log.Debug("load more rejected", zap.String("account", account), zap.Error(err))
	}
}

// Acquire returns the account's stream, starting one on first use.
func (m *StreamManager) Acquire(ctx context.Context, account string) (*feed.Stream, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, apperrors.ErrAccountRequired
	}

	m.mu.Lock()
	if managed, ok := m.streams[account]; ok {
		managed.refs++
		m.mu.Unlock()
		return managed.stream, nil
	}
	m.mu.Unlock()

	hook := func(visible []events.Notification) {
		m.hub.BroadcastToAccount(StreamNotifications, account, Message{
			Event: "notifications.sync",
			Data:  visible,
		})
	}

	stream, err := m.factory(ctx, account, hook)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if managed, ok := m.streams[account]; ok {
		// another subscriber won the race; keep theirs
		managed.refs++
		go stream.StopSyncing()
		return managed.stream, nil
	}
	m.streams[account] = &managedStream{stream: stream, refs: 1}
	m.log.Info("notification stream started", zap.String("account", account))
	return stream, nil
}

// Release drops one reference to the account's stream and stops the stream
// when nobody is left.
func (m *StreamManager) Release(account string) {
	account = strings.ToLower(strings.TrimSpace(account))

	m.mu.Lock()
	managed, ok := m.streams[account]
	if !ok {
		m.mu.Unlock()
		return
	}
	managed.refs--
	if managed.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.streams, account)
	m.mu.Unlock()

	managed.stream.StopSyncing()
	m.log.Info("notification stream stopped", zap.String("account", account))
}

// Active reports how many account streams are running.
func (m *StreamManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Shutdown stops every running stream.
func (m *StreamManager) Shutdown() {
	m.mu.Lock()
	streams := make([]*managedStream, 0, len(m.streams))
	for account, managed := range m.streams {
		streams = append(streams, managed)
		delete(m.streams, account)
	}
	m.mu.Unlock()

	for _, managed := range streams {
		managed.stream.StopSyncing()
	}
}
