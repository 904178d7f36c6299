// Package main runs the ops HTTP server: health, last run, and manual run triggers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-marketing/etl/config"
	"github.com/aura-marketing/etl/internal/middleware"
	"github.com/aura-marketing/etl/internal/runs"
	"github.com/aura-marketing/etl/pkg/queue"
	"github.com/aura-marketing/etl/pkg/redis"
	"github.com/aura-marketing/etl/pkg/response"
	"github.com/aura-marketing/etl/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	taskClient := rdb.TaskClient()
	defer taskClient.Close()
	jobQueue := queue.NewQueue(taskClient, logger)
	jobQueue.SetTaskOptions(queue.TypeExtract,
		asynq.MaxRetry(cfg.Pipeline.MaxRetries),
		asynq.Timeout(cfg.Pipeline.RunTimeout),
	)

	runsHandler := runs.NewHandler(runs.NewStore(rdb.Client, runs.DefaultTTL), jobQueue, cfg.Pipeline.Table, logger)
	if cfg.AWS.RawBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.RawBucket,
		}, logger)
		if err != nil {
			logger.Warn("archive links disabled", zap.Error(err))
		} else {
			runsHandler.SetPresigner(s3Client)
		}
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		response.Internal(c, "internal error")
	}))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	router.GET("/health", runs.Health)
	runsHandler.Register(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
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
