// Package main runs the background migration worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/demonflare/fallowl/config"
	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/durable"
	"github.com/demonflare/fallowl/internal/notify"
	"github.com/demonflare/fallowl/internal/origin"
	"github.com/demonflare/fallowl/internal/transfer"
	"github.com/demonflare/fallowl/internal/worker"
	"github.com/demonflare/fallowl/pkg/database"
	"github.com/demonflare/fallowl/pkg/queue"
	"github.com/demonflare/fallowl/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	originClient, err := origin.NewClient(cfg.Origin.BaseURL, cfg.Origin.AccountID, cfg.Origin.APIKey, cfg.Origin.APISecret)
	if err != nil {
		logger.Fatal("origin client", zap.Error(err))
	}

	store, err := durable.NewS3Store(ctx, durable.S3Config{
		Region:          cfg.Durable.Region,
		Bucket:          cfg.Durable.Bucket,
		AccessKeyID:     cfg.Durable.AccessKeyID,
		SecretAccessKey: cfg.Durable.SecretAccessKey,
		Endpoint:        cfg.Durable.Endpoint,
		CDNBaseURL:      cfg.CDN.BaseURL,
	}, logger)
	if err != nil {
		logger.Fatal("durable store", zap.Error(err))
	}

	cat := catalog.NewPostgresStore(pool)
	notifier := notify.NewRedisPublisher(rdb.Client, logger)
	engine := transfer.NewEngine(cat, originClient, store, notifier, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMigrationProcessor(engine, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("migration worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("migration worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
