package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/feedcal/feedcal/global"
	"github.com/feedcal/feedcal/models"
	"github.com/feedcal/feedcal/syncer"
	"github.com/feedcal/feedcal/utils"
)

var (
	syncService   *syncer.Service
	syncScheduler *syncer.Scheduler
)

const eventsCacheTTL = 10 * time.Minute

// InitCalendar wires the sync service and scheduler into the calendar
// handlers. Called once from main after config init.
func InitCalendar(service *syncer.Service, scheduler *syncer.Scheduler) {
	syncService = service
	syncScheduler = scheduler
}

func eventsCacheKey(connectionID uint) string {
	return fmt.Sprintf("connection_events:%d", connectionID)
}

func invalidateEventsCache(connectionID uint) {
	go func() {
		_ = global.RedisDB.Del(context.Background(), eventsCacheKey(connectionID)).Err()
	}()
}

func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	return userID.(uint), true
}

// findUserConnection loads a connection and enforces ownership.
func findUserConnection(c *gin.Context, userID uint) (*models.FeedConnection, bool) {
	var conn models.FeedConnection
	err := global.DB.
		Where("id = ? AND user_id = ?", c.Param("id"), userID).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return &conn, true
}

// ValidateFeed previews a feed URL before a connection is created. Nothing
// is persisted.
func ValidateFeed(c *gin.Context) {
	var input struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := syncService.ValidateFeedURL(c.Request.Context(), input.URL)
	c.JSON(http.StatusOK, info)
}

// CreateConnection subscribes the user to a feed URL and runs the initial
// full sync. Subscribing to a URL whose connection was soft-deleted revives
// it instead of creating a duplicate.
func CreateConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input struct {
		URL  string `json:"url" binding:"required"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := syncService.ValidateFeedURL(c.Request.Context(), input.URL)
	if !info.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed: " + info.Error})
		return
	}

	name := input.Name
	if name == "" {
		name = info.CalendarName
	}

	// The stored URL is encrypted with a random nonce, so equality has to
	// be checked against decrypted values.
	conn, err := findConnectionByURL(userID, input.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if conn != nil {
		conn.IsConnected = true
		conn.Name = name
		if err := global.DB.Unscoped().Model(conn).
			Updates(map[string]interface{}{
				"is_connected": true,
				"name":         name,
				"deleted_at":   nil,
			}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	} else {
		encryptedURL, err := utils.EncryptString(input.URL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		conn = &models.FeedConnection{
			UserID:      userID,
			Name:        name,
			FeedURL:     encryptedURL,
			IsConnected: true,
		}
		if err := global.DB.Create(conn).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	outcome := syncService.SyncConnection(c.Request.Context(), conn)
	invalidateEventsCache(conn.ID)

	c.JSON(http.StatusCreated, gin.H{
		"connection": conn,
		"sync":       outcome,
	})
}

func findConnectionByURL(userID uint, url string) (*models.FeedConnection, error) {
	var conns []models.FeedConnection
	if err := global.DB.Unscoped().
		Where("user_id = ?", userID).
		Find(&conns).Error; err != nil {
		return nil, err
	}
	for i := range conns {
		plain, err := utils.DecryptString(conns[i].FeedURL)
		if err != nil {
			continue
		}
		if plain == url {
			return &conns[i], nil
		}
	}
	return nil, nil
}

func ListConnections(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var conns []models.FeedConnection
	if err := global.DB.
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&conns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conns)
}

// UpdateConnection changes the display name and/or feed URL. A URL change
// resets both cache validators so the next fetch is unconditional, then
// re-syncs immediately.
func UpdateConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conn, ok := findUserConnection(c, userID)
	if !ok {
		return
	}

	var input struct {
		URL  *string `json:"url"`
		Name *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	urlChanged := false

	if input.Name != nil && *input.Name != "" {
		updates["name"] = *input.Name
	}

	if input.URL != nil && *input.URL != "" {
		current, err := utils.DecryptString(conn.FeedURL)
		if err != nil || current != *input.URL {
			info := syncService.ValidateFeedURL(c.Request.Context(), *input.URL)
			if !info.Valid {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed: " + info.Error})
				return
			}
			encryptedURL, err := utils.EncryptString(*input.URL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			updates["feed_url"] = encryptedURL
			// Validators belong to the old URL; clearing them forces a
			// full refetch.
			updates["etag"] = nil
			updates["last_modified"] = nil
			urlChanged = true
		}
	}

	if len(updates) > 0 {
		if err := global.DB.Model(conn).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	var outcome *syncer.SyncOutcome
	if urlChanged {
		if err := global.DB.First(conn, conn.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		o := syncService.SyncConnection(c.Request.Context(), conn)
		outcome = &o
		invalidateEventsCache(conn.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"connection": conn,
		"sync":       outcome,
	})
}

// DeleteConnection soft-deletes the connection and all of its events.
func DeleteConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conn, ok := findUserConnection(c, userID)
	if !ok {
		return
	}

	err := global.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connection_id = ?", conn.ID).
			Delete(&models.CalendarEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Model(conn).Update("is_connected", false).Error; err != nil {
			return err
		}
		return tx.Delete(conn).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	invalidateEventsCache(conn.ID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// TriggerConnectionSync synchronously syncs one connection and returns the
// outcome, including the specific error message on failure.
func TriggerConnectionSync(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conn, ok := findUserConnection(c, userID)
	if !ok {
		return
	}

	outcome := syncService.SyncConnection(c.Request.Context(), conn)
	invalidateEventsCache(conn.ID)

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, outcome)
}

// TriggerSyncAll runs one full poll cycle immediately, subject to the same
// overlap guard as scheduled cycles.
func TriggerSyncAll(c *gin.Context) {
	if err := syncScheduler.TriggerSync(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true})
}

// GetConnectionEvents lists the stored (non-deleted) events of one
// connection, cached in redis for a short TTL.
func GetConnectionEvents(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conn, ok := findUserConnection(c, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	cacheKey := eventsCacheKey(conn.ID)

	var events []models.CalendarEvent
	if cachedData, err := global.RedisDB.Get(ctx, cacheKey).Result(); err == nil {
		if err := json.Unmarshal([]byte(cachedData), &events); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	} else if err == redis.Nil {
		if err := global.DB.
			Where("connection_id = ?", conn.ID).
			Order("start_time ASC").
			Find(&events).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		eventsJSON, err := json.Marshal(events)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := global.RedisDB.Set(ctx, cacheKey, eventsJSON, eventsCacheTTL).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}

// SyncStatus reports whether the scheduler runs, its interval, and whether
// a cycle is in progress.
func SyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, syncScheduler.Status())
}
