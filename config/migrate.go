package config

import (
	"log"

	"github.com/feedcal/feedcal/global"
	"github.com/feedcal/feedcal/models"
)

// MigrateDB runs database migrations
func MigrateDB() {
	err := global.DB.AutoMigrate(
		&models.User{},
		&models.FeedConnection{},
		&models.CalendarEvent{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")
}
