package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"classhub/internal/app"
	"classhub/internal/class"
	"classhub/internal/config"
	"classhub/internal/notification"
	"classhub/internal/queue"
	"classhub/internal/store"
)

// The worker is the scheduled half of the reminder pipeline: once a minute it
// asks the notification service what is due and dispatches it. It runs as its
// own process so the API stays free of background timers.
func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classhub:notifications")
	}

	reminders := notification.NewService(
		class.NewRepository(db.Client),
		notification.NewRepository(db.Client),
		q,
		logger,
	)

	logger.Info("reminder worker started")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reminder worker stopped")
			return
		case now := <-ticker.C:
			n, err := reminders.DispatchDue(ctx, now)
			if err != nil {
				logger.Error("dispatch failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reminders dispatched", zap.Int("count", n))
			}
		}
	}
}
