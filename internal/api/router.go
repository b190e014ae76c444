package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *NotificationHandler,
	deviceHandler *DeviceHandler,
	streamHandler *StreamHandler,
	db *pgxpool.Pool,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(MetricsMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/notifications", notificationHandler.Submit)
		auth.GET("/notifications/status", notificationHandler.Status)
		auth.GET("/notifications", notificationHandler.List)
		auth.GET("/notifications/unread", notificationHandler.ListUnread)
		auth.GET("/notifications/stream", streamHandler.Stream)
		auth.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
		auth.PUT("/notifications/:id/read", notificationHandler.MarkRead)

		auth.POST("/devices", deviceHandler.Register)
		auth.DELETE("/devices/:token", deviceHandler.Unregister)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
