package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/pkg/database"
)

// Conn is the subset of *pgx.Conn the Loader needs.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Connector opens a dedicated connection for one load.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectionConfig) (Conn, error)
}

// PgxConnector dials the warehouse with pgx.
type PgxConnector struct {
	logger *zap.Logger
}

// NewPgxConnector creates a connector that opens unpooled pgx connections.
func NewPgxConnector(logger *zap.Logger) *PgxConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgxConnector{logger: logger}
}

// Connect opens and pings a new connection.
func (c *PgxConnector) Connect(ctx context.Context, cfg ConnectionConfig) (Conn, error) {
	conn, err := database.Connect(ctx, cfg.DSN(), c.logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
