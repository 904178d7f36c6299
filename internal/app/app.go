// Package app assembles pipeline components from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-marketing/etl/config"
	"github.com/aura-marketing/etl/internal/archive"
	"github.com/aura-marketing/etl/internal/generator"
	"github.com/aura-marketing/etl/internal/pipeline"
	"github.com/aura-marketing/etl/internal/warehouse"
	"github.com/aura-marketing/etl/pkg/database"
	"github.com/aura-marketing/etl/pkg/storage"
)

// Pipeline holds the assembled runner and the optional archive bucket client.
type Pipeline struct {
	Runner *pipeline.Runner
	Table  warehouse.TableRef
	S3     *storage.S3 // nil when archiving is disabled
}

// NewPipeline builds a runner writing to cfg.Pipeline.Table. Archiving is enabled when a raw bucket is configured.
func NewPipeline(ctx context.Context, cfg *config.Config, provider pipeline.ConfigProvider, trigger pipeline.Trigger, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table, err := warehouse.ParseTableRef(cfg.Pipeline.Table)
	if err != nil {
		return nil, err
	}
	loader := warehouse.NewLoader(warehouse.NewPgxConnector(logger), logger)
	runner := pipeline.NewRunner(provider, generator.New(nil, nil), loader, trigger, pipeline.Settings{
		BatchSize: cfg.Pipeline.BatchSize,
		Table:     table,
	}, logger)

	p := &Pipeline{Runner: runner, Table: table}
	if cfg.AWS.RawBucket == "" {
		return p, nil
	}
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Bucket:          cfg.AWS.RawBucket,
	}, logger)
	if err != nil {
		logger.Warn("archive disabled", zap.Error(err))
		return p, nil
	}
	runner.SetArchiver(archive.New(s3Client, cfg.AWS.RawPrefix, logger))
	p.S3 = s3Client
	return p, nil
}

// Migrate creates the destination schema and table if they do not exist.
// A table without a schema goes into the connection's schema.
func Migrate(ctx context.Context, provider pipeline.ConfigProvider, table warehouse.TableRef, logger *zap.Logger) error {
	cc, err := provider.ConnectionConfig()
	if err != nil {
		return fmt.Errorf("resolve connection config: %w", err)
	}
	if err := cc.Validate(); err != nil {
		return err
	}
	conn, err := database.Connect(ctx, cc.DSN(), logger)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	schema := table.Schema
	if schema == "" {
		schema = cc.Schema
	}
	return database.Migrate(ctx, conn, schema, table.Name)
}
