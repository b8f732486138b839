package models

import (
	"time"

	"gorm.io/gorm"
)

// FeedConnection is a subscription to one iCalendar feed URL.
// The URL is stored encrypted; ETag and LastModified are the HTTP cache
// validators from the most recent full fetch.
type FeedConnection struct {
	gorm.Model
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	FeedURL      string     `gorm:"type:text;not null" json:"-"` // encrypted at rest
	ETag         *string    `gorm:"column:etag;type:varchar(255)" json:"-"`
	LastModified *string    `gorm:"type:varchar(255)" json:"-"`
	IsConnected  bool       `gorm:"default:true" json:"is_connected"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (FeedConnection) TableName() string {
	return "feed_connections"
}
