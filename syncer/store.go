package syncer

import (
	"time"

	"github.com/feedcal/feedcal/models"
)

// Store is the persistence collaborator the sync core writes through. The
// gorm-backed implementation lives in the store package; tests substitute
// fakes.
type Store interface {
	// ListActiveConnections returns connections that are connected and not
	// soft-deleted, in stable order.
	ListActiveConnections() ([]models.FeedConnection, error)

	// GetEvents returns all stored events for a connection, soft-deleted
	// ones included so reappearing UIDs can be revived.
	GetEvents(connectionID uint) ([]models.CalendarEvent, error)

	// UpsertEvents persists new events and applies field updates to
	// existing ones.
	UpsertEvents(connectionID uint, creates, updates []models.CalendarEvent) error

	// SoftDeleteEvents marks the given UIDs as deleted.
	SoftDeleteEvents(connectionID uint, uids []string) error

	// UpdateCacheValidators persists the validators and sync timestamp
	// after a successful cycle for one connection.
	UpdateCacheValidators(connectionID uint, etag, lastModified *string, lastSyncedAt time.Time) error
}
