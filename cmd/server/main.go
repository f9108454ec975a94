// Package main runs the recording pipeline HTTP server with graceful
// shutdown. All external clients are constructed here and injected; nothing
// holds a global singleton.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/demonflare/fallowl/config"
	"github.com/demonflare/fallowl/internal/auth"
	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/durable"
	"github.com/demonflare/fallowl/internal/inventory"
	"github.com/demonflare/fallowl/internal/middleware"
	"github.com/demonflare/fallowl/internal/notify"
	"github.com/demonflare/fallowl/internal/origin"
	"github.com/demonflare/fallowl/internal/recordings"
	"github.com/demonflare/fallowl/internal/signing"
	"github.com/demonflare/fallowl/internal/syncer"
	"github.com/demonflare/fallowl/internal/transfer"
	"github.com/demonflare/fallowl/pkg/database"
	"github.com/demonflare/fallowl/pkg/queue"
	"github.com/demonflare/fallowl/pkg/redis"
	"github.com/demonflare/fallowl/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	cat := catalog.NewPostgresStore(pool)
	notifier := notify.NewRedisPublisher(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	var originClient *origin.Client
	if cfg.Origin.APIKey != "" && cfg.Origin.APISecret != "" {
		originClient, err = origin.NewClient(cfg.Origin.BaseURL, cfg.Origin.AccountID, cfg.Origin.APIKey, cfg.Origin.APISecret)
		if err != nil {
			logger.Fatal("origin client", zap.Error(err))
		}
	} else {
		logger.Warn("origin credentials not set; transfers disabled")
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

	var cdn *durable.CDNClient
	if cfg.CDN.APIKey != "" && cfg.CDN.ZoneID != "" {
		cdn, err = durable.NewCDNClient(cfg.CDN.APIURL, cfg.CDN.APIKey, cfg.CDN.ZoneID, logger)
		if err != nil {
			logger.Fatal("cdn client", zap.Error(err))
		}
	}

	var engine *transfer.Engine
	var orchestrator *syncer.Orchestrator
	if originClient != nil {
		engine = transfer.NewEngine(cat, originClient, store, notifier, logger)
		orchestrator = syncer.NewOrchestrator(cat, originClient, engine, notifier, logger)
		orchestrator.SetBatchSize(cfg.Sync.BatchSize)
		orchestrator.SetBatchDelay(time.Duration(cfg.Sync.BatchDelayMS) * time.Millisecond)
		orchestrator.SetPageSize(cfg.Sync.PageSize)
	}

	signer := signing.NewSigner(cfg.CDN.SigningKey)
	var inv *inventory.Service
	if cdn != nil {
		inv = inventory.NewService(store, cdn, logger)
	} else {
		inv = inventory.NewService(store, nil, logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	handler := recordings.NewHandler(cat, orchestrator, engine, signer, inv, logger)
	webhook := recordings.NewWebhookHandler(cat, jobQueue, notifier, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.POST("/webhooks/recording-ready", webhook.RecordingReady)

	api := router.Group("/", middleware.JWT(jwtService))
	{
		api.POST("/accounts/:id/sync", handler.Sync)
		api.GET("/accounts/:id/recordings", handler.List)
		api.GET("/recordings/:id", handler.Get)
		api.POST("/recordings/:id/migrate", handler.Migrate)
		api.POST("/recordings/:id/delete-origin", handler.DeleteOrigin)
		api.GET("/recordings/:id/signed-url", handler.SignedURL)
		api.GET("/storage/files", handler.StorageFiles)
		api.GET("/storage/usage", handler.StorageUsage)
		api.POST("/storage/purge", handler.PurgeCache)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
