package models

// ReadMarker records that an account has seen the notification carrying a
// given timestamp. Loss of these rows only degrades read/unread accuracy.
type ReadMarker struct {
	BaseModel

	Account   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_read_markers_account_ts" json:"account"`
	Timestamp int64  `gorm:"not null;uniqueIndex:idx_read_markers_account_ts" json:"timestamp"`
}

// LastSeenMarker stores the per-account high-water mark of acknowledged
// notifications.
type LastSeenMarker struct {
	Account   string `gorm:"primaryKey;type:varchar(64)" json:"account"`
	Timestamp int64  `gorm:"not null" json:"timestamp"`
}
