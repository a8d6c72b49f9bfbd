package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/pkg/logger"
)

const (
	defaultMarkerRetentionDays = 90
	defaultRefreshSpec         = "@every 1m"
	defaultPruneSpec           = "@daily"
)

// CacheSyncer is the feed cache surface the syncer drives.
type CacheSyncer interface {
	Sync(ctx context.Context) bool
}

// MarkerPruner removes read-state records older than a cutoff timestamp.
type MarkerPruner interface {
	PruneBefore(ctx context.Context, before int64) (int64, error)
}

// Syncer coordinates background upkeep: refreshing the shared notification
// cache and pruning read-state records past their retention.
type Syncer struct {
	cache     CacheSyncer
	pruner    MarkerPruner
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	refreshSchedule string
	pruneSchedule   string
}

// Option customises the Syncer.
type Option func(*Syncer)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Syncer) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMarkerRetentionDays adjusts how long read-state records are kept.
func WithMarkerRetentionDays(days int) Option {
	return func(s *Syncer) {
		if days > 0 {
			s.retention = days
		}
	}
}

// WithRefreshSchedule overrides the cron schedule for cache refreshes.
func WithRefreshSchedule(spec string) Option {
	return func(s *Syncer) {
		if spec != "" {
			s.refreshSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron schedule for read-state pruning.
func WithPruneSchedule(spec string) Option {
	return func(s *Syncer) {
		if spec != "" {
			s.pruneSchedule = spec
		}
	}
}

// NewSyncer constructs a Syncer with sensible defaults. Any nil dependency
// results in the corresponding job being skipped.
func NewSyncer(cache CacheSyncer, pruner MarkerPruner, opts ...Option) *Syncer {
	s := &Syncer{
		cache:           cache,
		pruner:          pruner,
		now:             time.Now,
		retention:       defaultMarkerRetentionDays,
		refreshSchedule: defaultRefreshSpec,
		pruneSchedule:   defaultPruneSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	s.enabled = s.cache != nil || s.pruner != nil

	return s
}

// Start registers the jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (s *Syncer) Start() error {
	if !s.enabled {
		return nil
	}

	if s.cache != nil {
		if _, err := s.cron.AddFunc(s.refreshSchedule, func() {
			s.cache.Sync(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.pruner != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(s.pruneSchedule, func() {
			ctx := context.Background()
			removed, err := s.pruner.PruneBefore(ctx, s.cutoff())
			if err != nil {
				s.log.Warn("read-state prune failed", zap.Error(err))
				return
			}
			if removed > 0 {
				s.log.Info("read-state records pruned", zap.Int64("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Syncer) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Primarily used in tests
// and during graceful shutdown.
func (s *Syncer) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.cache != nil {
		s.cache.Sync(ctx)
	}

	if s.pruner != nil && s.retention > 0 {
		if _, err := s.pruner.PruneBefore(ctx, s.cutoff()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (s *Syncer) cutoff() int64 {
	return s.now().Add(-time.Duration(s.retention) * 24 * time.Hour).Unix()
}
