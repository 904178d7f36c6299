package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Connect opens a single, unpooled warehouse connection and verifies it with a ping.
// The caller owns the connection and must Close it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*pgx.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	logger.Debug("warehouse connection established",
		zap.String("host", config.Host),
		zap.String("database", config.Database),
		zap.String("application_name", config.RuntimeParams["application_name"]),
	)
	return conn, nil
}
