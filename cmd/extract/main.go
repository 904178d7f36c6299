// Package main runs one extract-and-load cycle and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-marketing/etl/config"
	"github.com/aura-marketing/etl/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	count := flag.Int("count", 0, "records to generate (default PIPELINE_BATCH_SIZE)")
	table := flag.String("table", "", "destination schema.table (default PIPELINE_TABLE)")
	migrate := flag.Bool("migrate", false, "create the destination table before loading")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", zap.Error(err))
		return 1
	}
	if *count > 0 {
		cfg.Pipeline.BatchSize = *count
	}
	if *table != "" {
		cfg.Pipeline.Table = *table
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
	defer cancel()

	provider := config.EnvProvider{}
	p, err := app.NewPipeline(ctx, cfg, provider, nil, logger)
	if err != nil {
		fmt.Printf("Error occurred: %v\n", err)
		return 1
	}

	if *migrate {
		if err := app.Migrate(ctx, provider, p.Table, logger); err != nil {
			fmt.Printf("Error occurred: %v\n", err)
			return 1
		}
	}

	res := p.Runner.Run(ctx)
	if res.Err != nil {
		fmt.Printf("Error occurred: %v\n", res.Err)
		return 1
	}
	fmt.Printf("Data successfully inserted into %s (%d rows)\n", res.Table, res.RowsLoaded)
	return 0
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
