package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/readstate"
	apperrors "github.com/colonylab/nestfeed/pkg/errors"
	"github.com/colonylab/nestfeed/pkg/logger"
	"github.com/colonylab/nestfeed/pkg/metrics"
)

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the clock, primarily for testing.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithViewOptions passes view options to every account view the service
// creates.
func WithViewOptions(opts ...ViewOption) ServiceOption {
	return func(s *Service) {
		s.viewOpts = opts
	}
}

// Service is the feed facade. It owns the shared cache and lazily builds one
// AccountView per account, seeding each from the account's first on-platform
// activity.
type Service struct {
	cache    *Cache
	filter   *Filter
	oracle   *eligibility.Oracle
	reads    readstate.Store
	log      *zap.Logger
	now      func() time.Time
	viewOpts []ViewOption

	mu       sync.Mutex
	accounts map[string]*AccountView
}

func NewService(cache *Cache, oracle *eligibility.Oracle, reads readstate.Store, opts ...ServiceOption) *Service {
	s := &Service{
		cache:    cache,
		filter:   NewFilter(oracle, reads),
		oracle:   oracle,
		reads:    reads,
		log:      logger.WithModule("feed.service"),
		now:      time.Now,
		accounts: make(map[string]*AccountView),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account returns the account's view, creating and seeding it on first use.
func (s *Service) Account(ctx context.Context, account string) (*AccountView, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, apperrors.ErrAccountRequired
	}

	s.mu.Lock()
	if view, ok := s.accounts[account]; ok {
		s.mu.Unlock()
		return view, nil
	}
	s.mu.Unlock()

	view, err := s.buildView(ctx, account)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[account]; ok {
		// another caller won the race
		return existing, nil
	}
	s.accounts[account] = view
	return view, nil
}

// buildView fetches the account's involvements and first activity in
// parallel, then seeds a view from the cache.
func (s *Service) buildView(ctx context.Context, account string) (*AccountView, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		firstActivity int64
		hasActivity   bool
	)
	g.Go(func() error {
		var err error
		firstActivity, hasActivity, err = s.oracle.FetchFirstActivity(gctx, account)
		return err
	})
	g.Go(func() error {
		return s.oracle.FetchAccountInvolvements(gctx, account)
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(err, "failed to load account data")
	}

	var seed []events.Notification
	if hasActivity {
		seed = s.cache.NotificationsSince(firstActivity)
	} else {
		s.log.Debug("account has no platform activity, starting empty",
			zap.String("account", account))
	}

	view, err := NewAccountView(ctx, account, seed, s.filter, s.oracle, s.reads, s.cache.Epoch(), s.viewOpts...)
	if err != nil {
		return nil, err
	}

	s.log.Info("account view created",
		zap.String("account", account),
		zap.Int("seeded", view.Len()))
	return view, nil
}

// SyncAccount refreshes the shared cache and folds anything new into the
// account's view. It reports whether the view gained notifications.
func (s *Service) SyncAccount(ctx context.Context, account string) (bool, error) {
	view, err := s.Account(ctx, account)
	if err != nil {
		return false, err
	}

	now := s.now().Unix()
	s.cache.Sync(ctx)

	candidates := s.cache.Notifications(view.LastSync(), now)
	if len(candidates) == 0 {
		metrics.SyncRuns.WithLabelValues("account", "empty").Inc()
		return false, nil
	}

	added, err := view.SyncNotifications(ctx, candidates)
	if err != nil {
		metrics.SyncRuns.WithLabelValues("account", "error").Inc()
		return false, err
	}
	if added {
		metrics.SyncRuns.WithLabelValues("account", "new").Inc()
	} else {
		metrics.SyncRuns.WithLabelValues("account", "empty").Inc()
	}
	return added, nil
}

// NextPage returns the account's next page of notifications.
func (s *Service) NextPage(ctx context.Context, account string, limit int) ([]events.Notification, error) {
	view, err := s.Account(ctx, account)
	if err != nil {
		return nil, err
	}
	page := view.NextPage(limit)
	metrics.NotificationsDelivered.WithLabelValues("page").Add(float64(len(page)))
	return page, nil
}

// ResetCursor rewinds the account's pagination cursor to now.
func (s *Service) ResetCursor(ctx context.Context, account string) error {
	view, err := s.Account(ctx, account)
	if err != nil {
		return err
	}
	view.ResetCursor()
	return nil
}

// UnreadCount reports the account's unread notification count.
func (s *Service) UnreadCount(ctx context.Context, account string) (int, error) {
	view, err := s.Account(ctx, account)
	if err != nil {
		return 0, err
	}
	return view.UnreadCount(), nil
}

// MarkRead marks the account's notifications at the given timestamp read.
func (s *Service) MarkRead(ctx context.Context, account string, timestamp int64) error {
	view, err := s.Account(ctx, account)
	if err != nil {
		return err
	}
	return view.MarkRead(ctx, timestamp)
}

// MarkAllRead marks the account's whole feed read.
func (s *Service) MarkAllRead(ctx context.Context, account string) error {
	view, err := s.Account(ctx, account)
	if err != nil {
		return err
	}
	return view.MarkAllRead(ctx)
}

// Evict drops the account's view; the next call rebuilds it from scratch.
func (s *Service) Evict(account string) {
	account = strings.ToLower(strings.TrimSpace(account))

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, account)
}

// Cache exposes the shared notification cache.
func (s *Service) Cache() *Cache {
	return s.cache
}
