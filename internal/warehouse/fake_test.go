package warehouse

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// fakeWarehouse is an in-memory destination whose rows become visible only on commit.
type fakeWarehouse struct {
	mu sync.Mutex

	rows      [][]any
	failRow   int // index within a batch that is rejected; -1 for none
	failErr   error
	connErr   error
	beginErr  error
	commitErr error

	connects       int
	closes         int
	commits        int
	rollbacks      int
	rollbackCtxErr error
	statements     []string
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{failRow: -1}
}

func (w *fakeWarehouse) Connect(ctx context.Context, _ ConnectionConfig) (Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connects++
	if w.connErr != nil {
		return nil, w.connErr
	}
	return &fakeConn{w: w}, nil
}

func (w *fakeWarehouse) visible() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

type fakeConn struct {
	w *fakeWarehouse
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	if c.w.beginErr != nil {
		return nil, c.w.beginErr
	}
	return &fakeTx{w: c.w}, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	c.w.closes++
	return nil
}

// fakeTx embeds pgx.Tx so only the methods the loader calls need implementing.
type fakeTx struct {
	pgx.Tx
	w       *fakeWarehouse
	pending [][]any
	closed  bool
}

// sendBatch replaces the loader's pgx batch sender so the fake sees each statement and its arguments.
func (w *fakeWarehouse) sendBatch(ctx context.Context, tx pgx.Tx, sql string, rows [][]any) pgx.BatchResults {
	return &fakeBatchResults{ctx: ctx, tx: tx.(*fakeTx), sql: sql, rows: rows}
}

func newTestLoader(w *fakeWarehouse, logger *zap.Logger) *Loader {
	l := NewLoader(w, logger)
	l.send = w.sendBatch
	return l
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	w := tx.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if w.commitErr != nil {
		return w.commitErr
	}
	w.rows = append(w.rows, tx.pending...)
	w.commits++
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	w := tx.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.pending = nil
	w.rollbacks++
	w.rollbackCtxErr = ctx.Err()
	return nil
}

type fakeBatchResults struct {
	pgx.BatchResults
	ctx  context.Context
	tx   *fakeTx
	sql  string
	rows [][]any
	next int
}

func (br *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if err := br.ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	i := br.next
	br.next++
	args := br.rows[i]

	w := br.tx.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statements = append(w.statements, br.sql)
	if i == w.failRow {
		return pgconn.CommandTag{}, w.failErr
	}
	br.tx.pending = append(br.tx.pending, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (br *fakeBatchResults) Close() error { return nil }
