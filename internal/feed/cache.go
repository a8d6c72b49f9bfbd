package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/pkg/logger"
	"github.com/colonylab/nestfeed/pkg/metrics"
)

// DefaultEpoch is the fixed lower boundary of the feed: events before
// 2024-01-01T00:00:00Z are never fetched.
const DefaultEpoch int64 = 1704067200

// EventSource issues range queries against the indexed event log.
type EventSource interface {
	// RawEvents returns events with timestamp in (from, to], newest-first.
	RawEvents(ctx context.Context, from, to int64) ([]events.RawEvent, error)
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithEpoch overrides the fixed epoch boundary.
func WithEpoch(epoch int64) CacheOption {
	return func(c *Cache) {
		if epoch > 0 {
			c.epoch = epoch
		}
	}
}

// WithCacheClock overrides the clock, primarily for testing.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache holds the full time-ordered set of classified notifications visible
// to any account. It is shared by every account view and stream; mutation is
// append-only and order-preserving.
type Cache struct {
	source EventSource
	oracle *eligibility.Oracle
	log    *zap.Logger
	now    func() time.Time
	epoch  int64

	// syncMu serializes sync passes so concurrent stream ticks cannot fetch
	// and prepend the same window twice.
	syncMu sync.Mutex

	mu            sync.RWMutex
	notifications []events.Notification // newest-first
	lastSync      int64                 // high-water mark already merged
}

// NewCache constructs an empty cache; call Initialize to populate it.
func NewCache(source EventSource, oracle *eligibility.Oracle, opts ...CacheOption) *Cache {
	c := &Cache{
		source: source,
		oracle: oracle,
		log:    logger.WithModule("feed.cache"),
		now:    time.Now,
		epoch:  DefaultEpoch,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSync = c.epoch
	return c
}

// Initialize fetches and classifies everything from the epoch boundary to
// now. It never fails: when the fetch or classification errors the cache
// starts empty but stays fully queryable, and the high-water mark stays at
// the epoch so the next sync retries the whole window.
func (c *Cache) Initialize(ctx context.Context) {
	to := c.now().Unix()

	raws, err := c.source.RawEvents(ctx, c.epoch, to)
	if err != nil {
		c.log.Warn("initial event fetch failed, starting with an empty cache", zap.Error(err))
		return
	}

	classified, err := c.classifyBatch(ctx, raws)
	if err != nil {
		c.log.Warn("initial classification failed, starting with an empty cache", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.notifications = classified
	c.lastSync = to
	c.mu.Unlock()

	c.log.Info("notification cache initialised",
		zap.Int("notifications", len(classified)),
		zap.Int64("high_water_mark", to))
}

// classifyBatch resolves project display data for the batch, classifies each
// event, and returns the surviving notifications sorted newest-first. A
// failed display fetch errors out the whole batch so the caller can retry
// the window later. Notifications whose project display data is still
// unresolved are excluded; they reappear once a later fetch resolves the
// project.
func (c *Cache) classifyBatch(ctx context.Context, raws []events.RawEvent) ([]events.Notification, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	unique := make(map[string]struct{})
	projects := make([]string, 0, len(raws))
	for _, raw := range raws {
		if raw.Global() {
			continue
		}
		if _, ok := unique[raw.ProjectNest]; ok {
			continue
		}
		unique[raw.ProjectNest] = struct{}{}
		projects = append(projects, raw.ProjectNest)
	}

	if err := c.oracle.FetchProjectDisplayData(ctx, projects); err != nil {
		return nil, fmt.Errorf("project display fetch failed: %w", err)
	}

	classified := make([]events.Notification, 0, len(raws))
	for _, raw := range raws {
		notification, err := events.Classify(raw)
		if err != nil {
			if errors.Is(err, events.ErrSuppressed) {
				c.log.Debug("event suppressed", zap.String("event_id", raw.ID), zap.Error(err))
			} else {
				c.log.Warn("event dropped", zap.String("event_id", raw.ID), zap.Error(err))
			}
			metrics.EventsClassified.WithLabelValues(raw.Kind.String(), "dropped").Inc()
			continue
		}

		if notification.Project != nil {
			name, ok := c.oracle.ProjectName(notification.Project.Address)
			if !ok {
				metrics.EventsClassified.WithLabelValues(raw.Kind.String(), "dropped").Inc()
				continue // unresolved project, excluded until a later fetch
			}
			logo, _ := c.oracle.ProjectLogo(notification.Project.Address)
			notification.Project.Name = name
			notification.Project.Logo = logo
		}

		metrics.EventsClassified.WithLabelValues(raw.Kind.String(), "kept").Inc()
		classified = append(classified, *notification)
	}

	// both orderings appear at the source; normalize to newest-first
	sort.SliceStable(classified, func(i, j int) bool {
		return classified[i].Timestamp > classified[j].Timestamp
	})

	return classified, nil
}

// Sync fetches events past the high-water mark, classifies them and prepends
// the result. It reports whether anything new was added. All failures are
// swallowed and logged: sync is best-effort and never crashes the caller.
func (c *Cache) Sync(ctx context.Context) bool {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	to := c.now().Unix()

	c.mu.RLock()
	from := c.lastSync
	c.mu.RUnlock()

	raws, err := c.source.RawEvents(ctx, from, to)
	if err != nil {
		c.log.Warn("event sync failed", zap.Error(err))
		metrics.SyncRuns.WithLabelValues("cache", "error").Inc()
		return false
	}
	if len(raws) == 0 {
		metrics.SyncRuns.WithLabelValues("cache", "empty").Inc()
		return false
	}

	classified, err := c.classifyBatch(ctx, raws)
	if err != nil {
		c.log.Warn("event sync classification failed", zap.Error(err))
		metrics.SyncRuns.WithLabelValues("cache", "error").Inc()
		return false
	}
	if len(classified) == 0 {
		metrics.SyncRuns.WithLabelValues("cache", "empty").Inc()
		return false
	}

	c.mu.Lock()
	c.notifications = append(classified, c.notifications...)
	c.lastSync = classified[0].Timestamp
	c.mu.Unlock()

	metrics.SyncRuns.WithLabelValues("cache", "new").Inc()
	return true
}

// Notifications returns cached entries with timestamp in (from, to]. The
// result is a copy and safe to mutate.
func (c *Cache) Notifications(from, to int64) []events.Notification {
	if from >= to {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []events.Notification
	for _, notification := range c.notifications {
		if notification.Timestamp > from && notification.Timestamp <= to {
			out = append(out, notification)
		}
	}

	return out
}

// NotificationsSince returns cached entries newer than the given timestamp.
func (c *Cache) NotificationsSince(ts int64) []events.Notification {
	return c.Notifications(ts, c.now().Unix())
}

// NotificationsTo returns cached entries at or before the given timestamp.
func (c *Cache) NotificationsTo(ts int64) []events.Notification {
	return c.Notifications(c.epoch, ts)
}

// All returns a copy of every cached notification, newest-first.
func (c *Cache) All() []events.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]events.Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// Len reports the number of cached notifications.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.notifications)
}

// LastSync returns the cache's high-water mark.
func (c *Cache) LastSync() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Epoch returns the fixed lower boundary of the feed.
func (c *Cache) Epoch() int64 {
	return c.epoch
}
