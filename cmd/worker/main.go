package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"campuspush/config"
	"campuspush/internal/gateway"
	"campuspush/internal/repository"
	"campuspush/internal/worker"
	"campuspush/pkg/db"
	"campuspush/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting delivery worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.Duration("interval", cfg.Worker.Interval()),
		zap.String("gateway_url", cfg.Gateway.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	queueRepo := repository.NewQueueRepository(dbConn)

	// Push gateway client
	gwClient := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout(), log)

	// Gateway rate limit compliance
	limiter := rate.NewLimiter(rate.Limit(cfg.Gateway.RequestsPerSec), 1)

	processor := worker.NewProcessor(queueRepo, gwClient, limiter, log, worker.Config{
		Interval:       cfg.Worker.Interval(),
		FetchLimit:     cfg.Worker.FetchLimit,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		MaxBatchSize:   cfg.Gateway.MaxBatchSize,
		GatewayTimeout: cfg.Gateway.Timeout(),
	})
	processor.Start()

	// Terminal-row retention sweep, independent of the processing cycle
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go processor.RunCleanupLoop(cleanupCtx, time.Hour, cfg.Worker.RetentionDays)

	// Metrics endpoint
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.Worker.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Info("Metrics server starting", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("Delivery worker is fully initialized and running")

	// Graceful shutdown: stop scheduling new cycles, let the in-flight
	// cycle finish its reconciliation.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down delivery worker gracefully...")

	cleanupCancel()
	processor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}

	log.Info("Delivery worker shutdown complete")
}
