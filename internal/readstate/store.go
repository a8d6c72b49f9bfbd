package readstate

import "context"

// Store is the durable set of "seen" notification timestamps per account.
// It lives outside the feed engine: losing it only degrades read/unread
// accuracy, never eligibility correctness.
type Store interface {
	// AddSeen marks the given notification timestamps as seen by the account.
	AddSeen(ctx context.Context, account string, timestamps ...int64) error

	// HasSeen reports, for each queried timestamp, whether the account has
	// already seen it.
	HasSeen(ctx context.Context, account string, timestamps []int64) (map[int64]bool, error)

	// LastSeenMarker returns the account's acknowledgement high-water mark,
	// zero when none was ever set.
	LastSeenMarker(ctx context.Context, account string) (int64, error)

	// SetLastSeenMarker moves the account's acknowledgement high-water mark
	// to the given timestamp.
	SetLastSeenMarker(ctx context.Context, account string, timestamp int64) error

	// Clear forgets everything recorded for the account.
	Clear(ctx context.Context, account string) error
}
