package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/readstate"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/logger"
	"github.com/colonylab/nestfeed/pkg/metrics"
)

// Stream defaults.
const (
	DefaultStreamLimit    = 500
	DefaultMarkReadAfter  = 10 * 24 * time.Hour
	DefaultSyncInterval   = 60 * time.Second
	DefaultStreamPageSize = 4
)

// StreamOptions tunes a push stream.
type StreamOptions struct {
	// Limit caps how many notifications the stream retains.
	Limit int
	// MarkReadAfter is the age past which delivered notifications are
	// auto-marked read.
	MarkReadAfter time.Duration
	// SyncInterval is the background refresh period.
	SyncInterval time.Duration
	// PageSize is how many more notifications each LoadMore call reveals.
	PageSize int
	// Clock overrides the stream's time source, primarily for testing.
	Clock func() time.Time
}

func (o *StreamOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultStreamLimit
	}
	if o.MarkReadAfter <= 0 {
		o.MarkReadAfter = DefaultMarkReadAfter
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultStreamPageSize
	}
}

// StreamHook receives the stream's visible window whenever it changes.
type StreamHook func(visible []events.Notification)

// Stream pushes an account's notifications to a consumer. It syncs the
// shared cache on a fixed interval, filters for the account, accumulates a
// visible window that grows with every delivery and LoadMore call, and
// auto-marks old entries read.
type Stream struct {
	account string
	cache   *Cache
	filter  *Filter
	oracle  *eligibility.Oracle
	reads   readstate.Store
	log     *zap.Logger
	now     func() time.Time
	opts    StreamOptions
	hook    StreamHook

	mu            sync.Mutex
	notifications []events.Notification // newest-first
	firstActivity int64
	lastSync      int64
	loadSize      int
	primed        bool // initial sync done; later arrivals are flagged new
	stopped       bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewStream builds a stream for the account and starts its background sync
// loop. The hook fires on the caller's behalf from the loop goroutine.
func NewStream(ctx context.Context, account string, cache *Cache, oracle *eligibility.Oracle, reads readstate.Store, hook StreamHook, opts StreamOptions) (*Stream, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, apperrors.ErrAccountRequired
	}
	if hook == nil {
		hook = func([]events.Notification) {}
	}
	opts.normalize()

	s := &Stream{
		account: account,
		cache:   cache,
		filter:  NewFilter(oracle, reads),
		oracle:  oracle,
		reads:   reads,
		log:     logger.WithModule("feed.stream").With(zap.String("account", account)),
		now:     time.Now,
		opts:    opts,
		hook:    hook,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}

	first, ok, err := oracle.FetchFirstActivity(ctx, account)
	if err != nil {
		s.log.Warn("first activity lookup failed, stream starts empty", zap.Error(err))
	} else if ok {
		s.firstActivity = first
	}

	s.syncAccount(ctx)
	s.mu.Lock()
	s.primed = true
	s.mu.Unlock()

	metrics.ActiveStreams.Inc()
	go s.run()

	return s, nil
}

// Account returns the normalised account address.
func (s *Stream) Account() string {
	return s.account
}

func (s *Stream) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Stream) tick() {
	ctx := context.Background()

	if !s.cache.Sync(ctx) {
		metrics.SyncRuns.WithLabelValues("stream", "empty").Inc()
		return
	}

	added := s.syncAccount(ctx)
	if added == 0 {
		metrics.SyncRuns.WithLabelValues("stream", "empty").Inc()
		return
	}
	metrics.SyncRuns.WithLabelValues("stream", "new").Inc()
	metrics.NotificationsDelivered.WithLabelValues("stream").Add(float64(added))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.loadSize += added
	visible := s.visibleLocked()
	s.mu.Unlock()

	s.hook(visible)
}

// syncAccount folds everything newer than the stream's watermark into the
// retained window and reports how many notifications arrived. Without any
// on-platform activity the stream never emits.
func (s *Stream) syncAccount(ctx context.Context) int {
	now := s.now().Unix()

	s.mu.Lock()
	if s.lastSync == 0 {
		if s.firstActivity == 0 {
			s.mu.Unlock()
			return 0
		}
		s.lastSync = s.firstActivity
	}
	last := s.lastSync
	s.mu.Unlock()

	candidates := s.cache.Notifications(last, now)

	if err := s.oracle.FetchAccountInvolvements(ctx, s.account); err != nil {
		s.log.Warn("involvement fetch failed, no new data", zap.Error(err))
		return 0
	}

	filtered, err := s.filter.FilterAccountNotifications(ctx, s.account, candidates, s.opts.Limit)
	if err != nil {
		s.log.Warn("filter pass failed, no new data", zap.Error(err))
		return 0
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	if s.primed {
		for i := range filtered {
			filtered[i].New = true
		}
	}
	s.notifications = append(filtered, s.notifications...)
	if len(s.notifications) > s.opts.Limit {
		s.notifications = s.notifications[:s.opts.Limit]
	}
	s.lastSync = now
	s.mu.Unlock()

	s.autoMarkRead(ctx, now)

	return len(filtered)
}

// autoMarkRead marks everything older than the retention window read.
func (s *Stream) autoMarkRead(ctx context.Context, now int64) {
	cutoff := now - int64(s.opts.MarkReadAfter/time.Second)

	s.mu.Lock()
	var timestamps []int64
	for i := range s.notifications {
		if s.notifications[i].IsUnread && s.notifications[i].Timestamp <= cutoff {
			s.notifications[i].IsUnread = false
			timestamps = append(timestamps, s.notifications[i].Timestamp)
		}
	}
	s.mu.Unlock()

	if len(timestamps) == 0 {
		return
	}
	if err := s.reads.AddSeen(ctx, s.account, timestamps...); err != nil {
		s.log.Warn("auto mark-read persist failed", zap.Error(err))
	}
}

// visibleLocked returns the window currently revealed to the consumer.
func (s *Stream) visibleLocked() []events.Notification {
	n := s.loadSize
	if n > len(s.notifications) {
		n = len(s.notifications)
	}
	out := make([]events.Notification, n)
	copy(out, s.notifications[:n])
	return out
}

// Visible returns the notifications currently revealed to the consumer.
func (s *Stream) Visible() []events.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// LoadMore grows the visible window by one page and emits it through the
// hook. A stopped stream rejects the call.
func (s *Stream) LoadMore() ([]events.Notification, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, apperrors.ErrStreamStopped
	}
	s.loadSize += s.opts.PageSize
	visible := s.visibleLocked()
	s.mu.Unlock()

	s.hook(visible)
	return visible, nil
}

// Reset shrinks the visible window back to nothing; a positive pageSize also
// replaces the page size for future LoadMore calls.
func (s *Stream) Reset(pageSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pageSize > 0 {
		s.opts.PageSize = pageSize
	}
	s.loadSize = 0
}

// Len reports how many notifications the stream retains.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

// UnreadCount reports how many retained notifications are unread.
func (s *Stream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, notification := range s.notifications {
		if notification.IsUnread {
			count++
		}
	}
	return count
}

// MarkRead marks retained notifications at the given timestamp read and
// records it.
func (s *Stream) MarkRead(ctx context.Context, timestamp int64) error {
	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].Timestamp == timestamp {
			s.notifications[i].IsUnread = false
		}
	}
	s.mu.Unlock()

	return s.reads.AddSeen(ctx, s.account, timestamp)
}

// MarkAllRead marks the whole retained window read and records it.
func (s *Stream) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	var timestamps []int64
	for i := range s.notifications {
		if s.notifications[i].IsUnread {
			s.notifications[i].IsUnread = false
			timestamps = append(timestamps, s.notifications[i].Timestamp)
		}
	}
	s.mu.Unlock()

	if len(timestamps) == 0 {
		return nil
	}
	return s.reads.AddSeen(ctx, s.account, timestamps...)
}

// StopSyncing halts the background loop. It is idempotent; results from any
// in-flight pass are discarded.
func (s *Stream) StopSyncing() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.stopCh)
		<-s.done
		metrics.ActiveStreams.Dec()
	})
}

// Stopped reports whether the stream has been stopped.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
