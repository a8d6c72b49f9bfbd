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
)

// defaultAccountLimit caps how many notifications an account view retains.
const defaultAccountLimit = 100

// ViewOption customises an AccountView.
type ViewOption func(*AccountView)

// WithViewClock overrides the clock, primarily for testing.
func WithViewClock(now func() time.Time) ViewOption {
	return func(v *AccountView) {
		if now != nil {
			v.now = now
		}
	}
}

// WithViewLimit overrides the retention cap.
func WithViewLimit(limit int) ViewOption {
	return func(v *AccountView) {
		if limit > 0 {
			v.limit = limit
		}
	}
}

// AccountView is the filtered, paginated feed of a single account. It keeps
// its own notification copies, so unread flags never leak between accounts.
type AccountView struct {
	account string
	filter  *Filter
	oracle  *eligibility.Oracle
	reads   readstate.Store
	log     *zap.Logger
	now     func() time.Time
	epoch   int64
	limit   int

	mu            sync.Mutex
	notifications []events.Notification // newest-first
	nextTimestamp int64                 // pagination cursor, inclusive upper bound
	lastSync      int64
}

// NewAccountView builds a view seeded with the given candidates and a fresh
// pagination cursor at now.
func NewAccountView(ctx context.Context, account string, seed []events.Notification, filter *Filter, oracle *eligibility.Oracle, reads readstate.Store, epoch int64, opts ...ViewOption) (*AccountView, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, apperrors.ErrAccountRequired
	}

	v := &AccountView{
		account: account,
		filter:  filter,
		oracle:  oracle,
		reads:   reads,
		log:     logger.WithModule("feed.account").With(zap.String("account", account)),
		now:     time.Now,
		epoch:   epoch,
		limit:   defaultAccountLimit,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.nextTimestamp = v.now().Unix()

	if _, err := v.SyncNotifications(ctx, seed); err != nil {
		return nil, err
	}

	return v, nil
}

// Account returns the normalised account address.
func (v *AccountView) Account() string {
	return v.account
}

// SyncNotifications filters the candidate set for this account and prepends
// whatever survives. It reports whether anything was added. A failed
// involvement fetch is treated as "no new data"; a sequencing violation in
// the filter is surfaced as an error.
func (v *AccountView) SyncNotifications(ctx context.Context, candidates []events.Notification) (bool, error) {
	now := v.now().Unix()

	if err := v.oracle.FetchAccountInvolvements(ctx, v.account); err != nil {
		v.log.Warn("involvement fetch failed, no new data", zap.Error(err))
		return false, nil
	}

	filtered, err := v.filter.FilterAccountNotifications(ctx, v.account, candidates, v.limit)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	v.notifications = append(filtered, v.notifications...)
	if len(v.notifications) > v.limit {
		v.notifications = v.notifications[:v.limit]
	}
	v.lastSync = now
	v.mu.Unlock()

	return len(filtered) > 0, nil
}

// Notifications returns the view's entries with timestamp in (from, to].
func (v *AccountView) Notifications(from, to int64) []events.Notification {
	if from >= to {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var out []events.Notification
	for _, notification := range v.notifications {
		if notification.Timestamp > from && notification.Timestamp <= to {
			out = append(out, notification)
		}
	}
	return out
}

// NextPage returns up to limit entries at or before the pagination cursor and
// advances the cursor past them. Once the feed is exhausted the cursor pins
// to the epoch boundary and every further call returns an empty page.
func (v *AccountView) NextPage(limit int) []events.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()

	var page []events.Notification
	for _, notification := range v.notifications {
		if notification.Timestamp > v.nextTimestamp {
			continue
		}
		page = append(page, notification)
		if limit > 0 && len(page) >= limit {
			break
		}
	}

	if len(page) == 0 {
		v.nextTimestamp = v.epoch
		return nil
	}

	v.nextTimestamp = page[len(page)-1].Timestamp - 1
	return page
}

// ResetCursor moves the pagination cursor back to now, so the next page
// starts from the newest entry again.
func (v *AccountView) ResetCursor() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextTimestamp = v.now().Unix()
}

// UnreadCount reports how many of the view's notifications are unread.
func (v *AccountView) UnreadCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	count := 0
	for _, notification := range v.notifications {
		if notification.IsUnread {
			count++
		}
	}
	return count
}

// MarkRead marks every notification at the given timestamp read and records
// it in the read-state store.
func (v *AccountView) MarkRead(ctx context.Context, timestamp int64) error {
	v.mu.Lock()
	for i := range v.notifications {
		if v.notifications[i].Timestamp == timestamp {
			v.notifications[i].IsUnread = false
		}
	}
	v.mu.Unlock()

	return v.reads.AddSeen(ctx, v.account, timestamp)
}

// MarkReadTo acknowledges everything at or before the given timestamp by
// moving the account's read marker, so older entries stay read without a
// seen record per timestamp.
func (v *AccountView) MarkReadTo(ctx context.Context, timestamp int64) error {
	v.mu.Lock()
	for i := range v.notifications {
		if v.notifications[i].Timestamp <= timestamp {
			v.notifications[i].IsUnread = false
		}
	}
	v.mu.Unlock()

	current, err := v.reads.LastSeenMarker(ctx, v.account)
	if err != nil {
		return err
	}
	if timestamp <= current {
		return nil
	}
	return v.reads.SetLastSeenMarker(ctx, v.account, timestamp)
}

// MarkAllRead marks the whole view read and records every timestamp in the
// read-state store.
func (v *AccountView) MarkAllRead(ctx context.Context) error {
	v.mu.Lock()
	timestamps := make([]int64, 0, len(v.notifications))
	for i := range v.notifications {
		if v.notifications[i].IsUnread {
			timestamps = append(timestamps, v.notifications[i].Timestamp)
			v.notifications[i].IsUnread = false
		}
	}
	v.mu.Unlock()

	if len(timestamps) == 0 {
		return nil
	}
	return v.reads.AddSeen(ctx, v.account, timestamps...)
}

// Len reports the number of notifications currently held by the view.
func (v *AccountView) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.notifications)
}

// LastSync returns the timestamp of the last sync pass that added data.
func (v *AccountView) LastSync() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSync
}
