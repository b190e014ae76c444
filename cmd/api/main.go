package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campuspush/config"
	"campuspush/internal/api"
	"campuspush/internal/realtime"
	"campuspush/internal/repository"
	"campuspush/internal/service"
	"campuspush/pkg/db"
	"campuspush/pkg/logger"
	redisclient "campuspush/pkg/redis"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notification API...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("port", cfg.Server.Port),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (realtime insert feed)
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn)
	queueRepo := repository.NewQueueRepository(dbConn)
	deviceRepo := repository.NewDeviceRepository(dbConn)

	// Realtime hub
	hub := realtime.NewHub(rdb, log)

	// Services
	notificationService := service.NewNotificationService(
		notificationRepo, queueRepo, deviceRepo, hub, log,
	)

	// Handlers
	notificationHandler := api.NewNotificationHandler(notificationService, notificationRepo, queueRepo, log)
	deviceHandler := api.NewDeviceHandler(deviceRepo, log)
	streamHandler := api.NewStreamHandler(hub, log)

	router := api.NewRouter(notificationHandler, deviceHandler, streamHandler, dbConn, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("Notification API is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification API gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Notification API shutdown complete")
}
