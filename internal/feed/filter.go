package feed

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/eligibility"
	"github.com/colonylab/nestfeed/internal/events"
	"github.com/colonylab/nestfeed/internal/readstate"
	"github.com/colonylab/nestfeed/pkg/logger"
)

// Filter applies per-account eligibility rules and read state to a candidate
// set of notifications. It is stateless and shared between account views and
// streams.
type Filter struct {
	oracle *eligibility.Oracle
	reads  readstate.Store
	log    *zap.Logger
}

func NewFilter(oracle *eligibility.Oracle, reads readstate.Store) *Filter {
	return &Filter{
		oracle: oracle,
		reads:  reads,
		log:    logger.WithModule("feed.filter"),
	}
}

// FilterAccountNotifications walks candidates in order, keeps the ones the
// account is eligible to see and stops once limit entries are kept (limit <= 0
// means unbounded). Kept entries carry the account's unread flags. The
// account's involvements must have been fetched first; an error is returned
// otherwise.
func (f *Filter) FilterAccountNotifications(ctx context.Context, account string, candidates []events.Notification, limit int) ([]events.Notification, error) {
	account = strings.ToLower(account)

	var kept []events.Notification
	for _, notification := range candidates {
		if limit > 0 && len(kept) >= limit {
			break
		}

		eligible, err := f.eligible(ctx, account, notification)
		if err != nil {
			return nil, err
		}
		if eligible {
			kept = append(kept, notification)
		}
	}

	return f.attachReadState(ctx, account, kept), nil
}

func (f *Filter) eligible(ctx context.Context, account string, notification events.Notification) (bool, error) {
	switch notification.Kind {
	case events.KindNewProjectOnDealFlow, events.KindNestIsOpen:
		return true, nil

	case events.KindMovedToAnalysis:
		if notification.Project == nil {
			return false, nil
		}
		allocation, err := f.oracle.Allocation(ctx, notification.Project.Address, account)
		if err != nil {
			f.log.Warn("allocation lookup failed, skipping notification",
				zap.String("project", notification.Project.Address),
				zap.Error(err))
			return false, nil
		}
		return allocation.Sign() > 0, nil

	case events.KindClaimUSDCExcess:
		if notification.Project == nil {
			return false, nil
		}
		over, err := f.oracle.Overinvestment(ctx, notification.Project.Address, account)
		if err != nil {
			f.log.Warn("overinvestment lookup failed, skipping notification",
				zap.String("project", notification.Project.Address),
				zap.Error(err))
			return false, nil
		}
		return over.Sign() > 0, nil

	case events.KindCountdownSet:
		if notification.CountdownNextPhase == events.PhaseDealFlow {
			return true, nil
		}
		return f.involved(account, notification)

	case events.KindCountdownHidden:
		return false, nil

	case events.KindCustomNotification:
		if notification.Project == nil {
			return true, nil
		}
		return f.involved(account, notification)

	default:
		// committee, portfolio, TGE and anything future default to the
		// strictest rule
		return f.involved(account, notification)
	}
}

func (f *Filter) involved(account string, notification events.Notification) (bool, error) {
	if notification.Project == nil {
		return false, nil
	}
	return f.oracle.IsInvolved(notification.Project.Address, account)
}

// attachReadState marks each kept notification read or unread for the
// account, honouring both individual seen records and the account's
// acknowledgement high-water mark. When the store is unavailable everything
// is reported unread.
func (f *Filter) attachReadState(ctx context.Context, account string, kept []events.Notification) []events.Notification {
	if len(kept) == 0 {
		return kept
	}

	timestamps := make([]int64, len(kept))
	for i, notification := range kept {
		timestamps[i] = notification.Timestamp
	}

	seen, err := f.reads.HasSeen(ctx, account, timestamps)
	if err != nil {
		f.log.Warn("read-state lookup failed, reporting all unread", zap.Error(err))
		seen = nil
	}

	marker, err := f.reads.LastSeenMarker(ctx, account)
	if err != nil {
		f.log.Warn("read marker lookup failed", zap.Error(err))
		marker = 0
	}

	for i := range kept {
		ts := kept[i].Timestamp
		kept[i].IsUnread = !seen[ts] && ts > marker
	}

	return kept
}
