// Package main runs the scheduled extract-and-load worker and the transform consumer.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-marketing/etl/config"
	"github.com/aura-marketing/etl/internal/app"
	"github.com/aura-marketing/etl/internal/runs"
	"github.com/aura-marketing/etl/internal/scheduler"
	"github.com/aura-marketing/etl/internal/transform"
	"github.com/aura-marketing/etl/internal/worker"
	"github.com/aura-marketing/etl/pkg/queue"
	"github.com/aura-marketing/etl/pkg/redis"
)

const concurrency = 4

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts := redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	rdb, err := redis.NewClient(ctx, redisOpts, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	taskClient := rdb.TaskClient()
	defer taskClient.Close()

	policy := scheduler.RetryPolicy{MaxRetries: cfg.Pipeline.MaxRetries, Delay: cfg.Pipeline.RetryDelay}
	jobQueue := queue.NewQueue(taskClient, logger)
	jobQueue.SetTaskOptions(queue.TypeTransform, asynq.MaxRetry(policy.MaxRetries))
	jobQueue.SetTaskOptions(queue.TypeExtract, asynq.MaxRetry(policy.MaxRetries), asynq.Timeout(cfg.Pipeline.RunTimeout))

	p, err := app.NewPipeline(ctx, cfg, config.EnvProvider{}, worker.NewQueueTrigger(jobQueue), logger)
	if err != nil {
		logger.Fatal("pipeline", zap.Error(err))
	}

	store := runs.NewStore(rdb.Client, runs.DefaultTTL)
	extract := worker.NewExtractJob(p.Runner, store, logger)
	transformJob := worker.NewTransformJob(transform.NewRunner(cfg.Transform.TransformArgs(), cfg.Transform.Dir, logger), logger)

	sched := scheduler.New(logger)
	if err := sched.Register(queue.TypeExtract, extract.Run, policy); err != nil {
		logger.Fatal("register extract", zap.Error(err))
	}
	if err := sched.Register(queue.TypeTransform, transformJob.Run, policy); err != nil {
		logger.Fatal("register transform", zap.Error(err))
	}
	if err := sched.Schedule(queue.TypeExtract, cfg.Pipeline.Schedule); err != nil {
		logger.Fatal("schedule extract", zap.Error(err))
	}

	logger.Info("worker started",
		zap.String("table", p.Table.String()),
		zap.String("schedule", cfg.Pipeline.Schedule),
		zap.Int("max_retries", policy.MaxRetries),
		zap.Duration("retry_delay", policy.Delay),
		zap.Bool("archive", p.S3 != nil),
	)
	if err := sched.Run(ctx, redisOpts.AsynqOpt(), concurrency); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
