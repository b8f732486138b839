// Package store implements the persistence collaborator over gorm.
package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/feedcal/feedcal/models"
)

// GormStore satisfies syncer.Store against a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListActiveConnections() ([]models.FeedConnection, error) {
	var conns []models.FeedConnection
	err := s.db.
		Where("is_connected = ?", true).
		Order("id ASC").
		Find(&conns).Error
	return conns, err
}

func (s *GormStore) GetEvents(connectionID uint) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	// Unscoped: soft-deleted events are included so reappearing UIDs are
	// revived instead of violating the connection+uid unique index.
	err := s.db.Unscoped().
		Where("connection_id = ?", connectionID).
		Find(&events).Error
	return events, err
}

func (s *GormStore) UpsertEvents(connectionID uint, creates, updates []models.CalendarEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(creates) > 0 {
			if err := tx.Create(&creates).Error; err != nil {
				return err
			}
		}
		for i := range updates {
			ev := &updates[i]
			// Unscoped so a revived record has its deleted_at cleared.
			if err := tx.Unscoped().Model(&models.CalendarEvent{}).
				Where("id = ?", ev.ID).
				Updates(map[string]interface{}{
					"title":           ev.Title,
					"description":     ev.Description,
					"location":        ev.Location,
					"start_time":      ev.StartTime,
					"end_time":        ev.EndTime,
					"is_all_day":      ev.IsAllDay,
					"timezone":        ev.Timezone,
					"status":          ev.Status,
					"is_recurring":    ev.IsRecurring,
					"recurrence_rule": ev.RecurrenceRule,
					"exception_dates": ev.ExceptionDates,
					"attendees":       ev.Attendees,
					"organizer":       ev.Organizer,
					"last_synced_at":  ev.LastSyncedAt,
					"deleted_at":      nil,
					"updated_at":      time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) SoftDeleteEvents(connectionID uint, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	return s.db.
		Where("connection_id = ? AND uid IN ?", connectionID, uids).
		Delete(&models.CalendarEvent{}).Error
}

func (s *GormStore) UpdateCacheValidators(connectionID uint, etag, lastModified *string, lastSyncedAt time.Time) error {
	return s.db.Model(&models.FeedConnection{}).
		Where("id = ?", connectionID).
		Updates(map[string]interface{}{
			"etag":           etag,
			"last_modified":  lastModified,
			"last_synced_at": lastSyncedAt,
		}).Error
}
