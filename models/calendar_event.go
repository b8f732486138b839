package models

import (
	"time"

	"gorm.io/gorm"
)

// Event status values as normalized by the feed parser.
const (
	EventStatusConfirmed = "CONFIRMED"
	EventStatusTentative = "TENTATIVE"
	EventStatusCancelled = "CANCELLED"
)

// CalendarEvent mirrors one VEVENT from a feed. UID is unique within a
// connection and is the reconciliation key; soft deletion marks events
// that disappeared from the feed.
type CalendarEvent struct {
	gorm.Model
	ConnectionID uint   `gorm:"not null;index:idx_events_connection_uid,unique" json:"connection_id"`
	UID          string `gorm:"type:varchar(500);not null;index:idx_events_connection_uid,unique" json:"uid"`

	Title       string  `gorm:"type:varchar(500);not null" json:"title"`
	Description *string `gorm:"type:text" json:"description,omitempty"`
	Location    *string `gorm:"type:varchar(500)" json:"location,omitempty"`

	StartTime time.Time `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	IsAllDay  bool      `gorm:"default:false" json:"is_all_day"`
	Timezone  string    `gorm:"type:varchar(100);default:UTC" json:"timezone"`

	Status string `gorm:"type:varchar(20);default:CONFIRMED" json:"status"`

	IsRecurring    bool    `gorm:"default:false" json:"is_recurring"`
	RecurrenceRule *string `gorm:"type:text" json:"recurrence_rule,omitempty"`

	// JSON-encoded lists; nil when the feed carried none.
	ExceptionDates *string `gorm:"type:jsonb" json:"exception_dates,omitempty"`
	Attendees      *string `gorm:"type:jsonb" json:"attendees,omitempty"`
	Organizer      *string `gorm:"type:jsonb" json:"organizer,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	Connection FeedConnection `gorm:"foreignKey:ConnectionID" json:"-"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}
