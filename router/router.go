package router

import (
	"os"
	"strings"
	"time"

	"github.com/feedcal/feedcal/controllers"
	"github.com/feedcal/feedcal/middlewares"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()

	allowedOrigins := []string{"http://localhost:5173", "http://localhost:8080"}
	if raw := os.Getenv("FRONTEND_ORIGINS"); raw != "" {
		split := strings.Split(raw, ",")
		allowedOrigins = allowedOrigins[:0]
		for _, v := range split {
			trimmed := strings.TrimSpace(v)
			if trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
		if len(allowedOrigins) == 0 {
			allowedOrigins = []string{"*"}
		}
	}

	allowCreds := true
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		allowCreds = false
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: allowCreds,
		MaxAge:           12 * time.Hour,
	}))

	// Public health endpoint for liveness/readiness checks
	r.GET("/api/health", controllers.Health)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", controllers.Login)
		auth.POST("/register", controllers.Register)
	}

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())
	{
		calendar := api.Group("/calendar")
		{
			calendar.POST("/validate", controllers.ValidateFeed)
			calendar.GET("/status", controllers.SyncStatus)
			calendar.POST("/sync", controllers.TriggerSyncAll)

			calendar.POST("/connections", controllers.CreateConnection)
			calendar.GET("/connections", controllers.ListConnections)
			calendar.PUT("/connections/:id", controllers.UpdateConnection)
			calendar.DELETE("/connections/:id", controllers.DeleteConnection)
			calendar.POST("/connections/:id/sync", controllers.TriggerConnectionSync)
			calendar.GET("/connections/:id/events", controllers.GetConnectionEvents)
		}
	}

	return r
}
