// Package warehouse loads ad event batches into the staging table with all-or-nothing semantics.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/internal/models"
	"github.com/aura-marketing/etl/pkg/etlerr"
)

// Status is the outcome of a load.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// DefaultReleaseTimeout bounds rollback and close after the caller's context is gone.
const DefaultReleaseTimeout = 10 * time.Second

// LoadResult reports one batch load. RowsLoaded is zero unless Status is StatusSuccess.
type LoadResult struct {
	Status     Status
	RowsLoaded int
	Err        error
}

// OK reports whether the batch was committed.
func (r LoadResult) OK() bool { return r.Status == StatusSuccess }

func failed(err error) LoadResult {
	return LoadResult{Status: StatusFailure, Err: err}
}

// Loader inserts a batch inside one transaction on a connection it owns for the duration of the call.
type Loader struct {
	connector      Connector
	logger         *zap.Logger
	releaseTimeout time.Duration
	send           batchSender
}

// batchSender sends sql once per argument row in a single round trip.
type batchSender func(ctx context.Context, tx pgx.Tx, sql string, rows [][]any) pgx.BatchResults

func sendPgxBatch(ctx context.Context, tx pgx.Tx, sql string, rows [][]any) pgx.BatchResults {
	batch := &pgx.Batch{}
	for _, args := range rows {
		batch.Queue(sql, args...)
	}
	return tx.SendBatch(ctx, batch)
}

// NewLoader creates a loader.
func NewLoader(connector Connector, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{connector: connector, logger: logger, releaseTimeout: DefaultReleaseTimeout, send: sendPgxBatch}
}

// Load inserts records into dest. Either every record is committed or none is.
func (l *Loader) Load(ctx context.Context, records []models.AdEventRecord, dest TableRef, cfg ConnectionConfig) LoadResult {
	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	if dest.Name == "" {
		return failed(etlerr.NewConfigurationError("destination table is required"))
	}
	if len(records) == 0 {
		return LoadResult{Status: StatusSuccess}
	}
	log := l.logger.With(zap.String("table", dest.String()), zap.Int("rows", len(records)))

	conn, err := l.connector.Connect(ctx, cfg)
	if err != nil {
		return failed(etlerr.NewConnectionError("connect warehouse", err))
	}
	defer func() {
		rctx, cancel := l.releaseContext(ctx)
		defer cancel()
		if err := conn.Close(rctx); err != nil {
			log.Warn("close warehouse connection", zap.Error(err))
		}
	}()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return failed(etlerr.NewConnectionError("begin transaction", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		rctx, cancel := l.releaseContext(ctx)
		defer cancel()
		err := tx.Rollback(rctx)
		switch {
		case err == nil:
			log.Warn("batch rolled back")
		case errors.Is(err, pgx.ErrTxClosed):
			log.Debug("transaction already closed")
		default:
			log.Error("rollback failed", zap.Error(err))
		}
	}()

	if err := l.insertBatch(ctx, tx, dest, records); err != nil {
		return failed(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return failed(etlerr.NewInsertError(etlerr.NoRow, fmt.Errorf("commit: %w", err), isTransient(err)))
	}
	committed = true

	log.Info("batch committed")
	return LoadResult{Status: StatusSuccess, RowsLoaded: len(records)}
}

// releaseContext keeps cleanup alive when ctx was cancelled, so an open transaction
// is always rolled back before its connection is released.
func (l *Loader) releaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.releaseTimeout)
}

// insertBatch queues one parameterized INSERT per record and sends them in a single round trip.
// The first rejected row is reported with its index.
func (l *Loader) insertBatch(ctx context.Context, tx pgx.Tx, dest TableRef, records []models.AdEventRecord) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}

	br := l.send(ctx, tx, InsertStatement(dest), rows)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return etlerr.NewInsertError(i, err, isTransient(err))
		}
	}
	if err := br.Close(); err != nil {
		return etlerr.NewInsertError(etlerr.NoRow, fmt.Errorf("close batch: %w", err), isTransient(err))
	}
	return nil
}

// InsertStatement returns the parameterized INSERT for dest.
func InsertStatement(dest TableRef) string {
	placeholders := make([]string, len(models.AdEventColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dest.Sanitize(),
		strings.Join(models.AdEventColumns, ", "),
		strings.Join(placeholders, ", "),
	)
}
