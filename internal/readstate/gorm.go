package readstate

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/colonylab/nestfeed/internal/models"
)

// GormStore implements Store on the primary SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a database-backed read-state store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("readstate: db is required")
	}
	return &GormStore{db: db}, nil
}

func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// AddSeen implements Store. Re-marking an already seen timestamp is a no-op.
func (s *GormStore) AddSeen(ctx context.Context, account string, timestamps ...int64) error {
	account = normalizeAccount(account)
	if account == "" || len(timestamps) == 0 {
		return nil
	}

	markers := make([]models.ReadMarker, 0, len(timestamps))
	for _, ts := range timestamps {
		markers = append(markers, models.ReadMarker{Account: account, Timestamp: ts})
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&markers).Error
}

// HasSeen implements Store.
func (s *GormStore) HasSeen(ctx context.Context, account string, timestamps []int64) (map[int64]bool, error) {
	account = normalizeAccount(account)

	seen := make(map[int64]bool, len(timestamps))
	for _, ts := range timestamps {
		seen[ts] = false
	}
	if account == "" || len(timestamps) == 0 {
		return seen, nil
	}

	var rows []models.ReadMarker
	err := s.db.WithContext(ctx).
		Where("account = ? AND timestamp IN ?", account, timestamps).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		seen[row.Timestamp] = true
	}

	return seen, nil
}

// LastSeenMarker implements Store.
func (s *GormStore) LastSeenMarker(ctx context.Context, account string) (int64, error) {
	account = normalizeAccount(account)

	var marker models.LastSeenMarker
	err := s.db.WithContext(ctx).Take(&marker, "account = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return marker.Timestamp, nil
}

// SetLastSeenMarker implements Store.
func (s *GormStore) SetLastSeenMarker(ctx context.Context, account string, timestamp int64) error {
	account = normalizeAccount(account)
	if account == "" {
		return nil
	}

	marker := models.LastSeenMarker{Account: account, Timestamp: timestamp}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
		}).
		Create(&marker).Error
}

// Clear implements Store.
func (s *GormStore) Clear(ctx context.Context, account string) error {
	account = normalizeAccount(account)
	if account == "" {
		return nil
	}

	if err := s.db.WithContext(ctx).
		Where("account = ?", account).
		Delete(&models.ReadMarker{}).Error; err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Where("account = ?", account).
		Delete(&models.LastSeenMarker{}).Error
}

// PruneBefore removes read markers older than the given timestamp across all
// accounts. Markers behind the feed's epoch boundary serve nothing.
func (s *GormStore) PruneBefore(ctx context.Context, timestamp int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", timestamp).
		Delete(&models.ReadMarker{})

	return result.RowsAffected, result.Error
}
