package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-marketing/etl/config"
	"github.com/aura-marketing/etl/internal/generator"
	"github.com/aura-marketing/etl/internal/models"
	"github.com/aura-marketing/etl/internal/warehouse"
	"github.com/aura-marketing/etl/pkg/etlerr"
)

func connConfig() warehouse.ConnectionConfig {
	return warehouse.ConnectionConfig{
		User:      "loader",
		Password:  "secret",
		Account:   "wh.internal:5432",
		Database:  "marketing",
		Warehouse: "compute_wh",
		Schema:    "source",
	}
}

type fakeLoader struct {
	mu      sync.Mutex
	calls   int
	batches [][]models.AdEventRecord
	result  func(records []models.AdEventRecord) warehouse.LoadResult
}

func (l *fakeLoader) Load(_ context.Context, records []models.AdEventRecord, _ warehouse.TableRef, _ warehouse.ConnectionConfig) warehouse.LoadResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.batches = append(l.batches, records)
	if l.result != nil {
		return l.result(records)
	}
	return warehouse.LoadResult{Status: warehouse.StatusSuccess, RowsLoaded: len(records)}
}

type countingTrigger struct {
	mu      sync.Mutex
	signals []LoadSignal
	err     error
}

func (c *countingTrigger) Fire(_ context.Context, s LoadSignal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, s)
	return c.err
}

// countingConnector records connection attempts and never connects.
type countingConnector struct {
	attempts int
}

func (c *countingConnector) Connect(context.Context, warehouse.ConnectionConfig) (warehouse.Conn, error) {
	c.attempts++
	return nil, errors.New("unexpected connection attempt")
}

type fakeArchiver struct {
	key string
	err error
	got int
}

func (a *fakeArchiver) Archive(_ context.Context, runID string, _ warehouse.TableRef, records []models.AdEventRecord) (string, error) {
	a.got = len(records)
	if a.err != nil {
		return "", a.err
	}
	return a.key + runID, nil
}

func newTestRunner(loader Loader, trigger Trigger, logger *zap.Logger) *Runner {
	r := NewRunner(
		config.StaticProvider(connConfig()),
		generator.NewSeeded(5, nil),
		loader,
		trigger,
		Settings{BatchSize: 10, Table: warehouse.DefaultTable},
		logger,
	)
	r.newID = func() string { return "run-1" }
	return r
}

func TestRun_SuccessFiresTriggerOnce(t *testing.T) {
	loader := &fakeLoader{}
	trigger := &countingTrigger{}

	res := newTestRunner(loader, trigger, nil).Run(context.Background())

	require.True(t, res.OK(), "run failed: %v", res.Err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, 10, res.RowsLoaded)
	assert.Equal(t, "source.raw_google_ads", res.Table)
	assert.NoError(t, res.Err)
	assert.NoError(t, res.TriggerErr)
	assert.Equal(t, 1, loader.calls)
	assert.Len(t, loader.batches[0], 10)

	require.Len(t, trigger.signals, 1)
	assert.Equal(t, LoadSignal{
		RunID:       "run-1",
		Table:       "source.raw_google_ads",
		RowsLoaded:  10,
		CommittedAt: trigger.signals[0].CommittedAt,
	}, trigger.signals[0])
	assert.False(t, trigger.signals[0].CommittedAt.IsZero())
}

func TestRun_LoadFailureNeverTriggers(t *testing.T) {
	loadErr := etlerr.NewInsertError(4, errors.New("value too long"), false)
	loader := &fakeLoader{result: func([]models.AdEventRecord) warehouse.LoadResult {
		return warehouse.LoadResult{Status: warehouse.StatusFailure, Err: loadErr}
	}}
	trigger := &countingTrigger{}
	core, logs := observer.New(zapcore.InfoLevel)

	res := newTestRunner(loader, trigger, zap.New(core)).Run(context.Background())

	assert.False(t, res.OK())
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, StageLoad, res.Stage)
	assert.Zero(t, res.RowsLoaded)
	assert.ErrorIs(t, res.Err, loadErr)
	assert.Empty(t, trigger.signals)

	entries := logs.FilterMessage("run failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "load", fields["stage"])
	assert.Equal(t, "INSERT", fields["kind"])
	assert.Equal(t, false, fields["retryable"])
	assert.Equal(t, "run-1", fields["run_id"])
}

func TestRun_MissingWarehouseFailsBeforeConnecting(t *testing.T) {
	cfg := connConfig()
	cfg.Warehouse = ""
	connector := &countingConnector{}
	trigger := &countingTrigger{}

	r := NewRunner(
		config.StaticProvider(cfg),
		generator.NewSeeded(5, nil),
		warehouse.NewLoader(connector, nil),
		trigger,
		Settings{BatchSize: 10},
		nil,
	)
	res := r.Run(context.Background())

	assert.False(t, res.OK())
	assert.Equal(t, StageConfig, res.Stage)
	assert.Equal(t, StateRolledBack, res.State)
	assert.True(t, etlerr.Is(res.Err, etlerr.KindConfiguration))
	assert.False(t, etlerr.IsRetryable(res.Err))
	assert.Equal(t, 0, connector.attempts)
	assert.Empty(t, trigger.signals)
}

type errProvider struct{ err error }

func (p errProvider) ConnectionConfig() (warehouse.ConnectionConfig, error) {
	return warehouse.ConnectionConfig{}, p.err
}

func TestRun_ProviderErrorIsConfigurationError(t *testing.T) {
	loader := &fakeLoader{}
	r := NewRunner(errProvider{err: errors.New("vault sealed")}, generator.NewSeeded(1, nil), loader, nil, Settings{}, nil)

	res := r.Run(context.Background())

	assert.True(t, etlerr.Is(res.Err, etlerr.KindConfiguration))
	assert.Contains(t, res.Err.Error(), "vault sealed")
	assert.Equal(t, 0, loader.calls)
}

func TestRun_TriggerFailureKeepsCommit(t *testing.T) {
	trigger := &countingTrigger{err: errors.New("redis: connection refused")}

	res := newTestRunner(&fakeLoader{}, trigger, nil).Run(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, StageTrigger, res.Stage)
	assert.True(t, etlerr.Is(res.TriggerErr, etlerr.KindTrigger))
	assert.False(t, etlerr.IsRetryable(res.TriggerErr))
	assert.Len(t, trigger.signals, 1)
}

func TestRun_TriggerSurvivesCancelledContext(t *testing.T) {
	var sawErr error
	trigger := TriggerFunc(func(ctx context.Context, _ LoadSignal) error {
		sawErr = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	loader := &fakeLoader{result: func(records []models.AdEventRecord) warehouse.LoadResult {
		cancel()
		return warehouse.LoadResult{Status: warehouse.StatusSuccess, RowsLoaded: len(records)}
	}}

	res := newTestRunner(loader, trigger, nil).Run(ctx)

	assert.True(t, res.OK())
	assert.NoError(t, sawErr)
}

func TestRun_Archive(t *testing.T) {
	archiver := &fakeArchiver{key: "raw/"}
	r := newTestRunner(&fakeLoader{}, nil, nil)
	r.SetArchiver(archiver)

	res := r.Run(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, "raw/run-1", res.ArchiveKey)
	assert.Equal(t, 10, archiver.got)
}

func TestRun_ArchiveFailureDoesNotFailRun(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("access denied")}
	trigger := &countingTrigger{}
	r := newTestRunner(&fakeLoader{}, trigger, nil)
	r.SetArchiver(archiver)

	res := r.Run(context.Background())

	assert.True(t, res.OK())
	assert.Error(t, res.ArchiveErr)
	assert.Empty(t, res.ArchiveKey)
	assert.Len(t, trigger.signals, 1)
}

func TestRun_IndependentBatches(t *testing.T) {
	loader := &fakeLoader{}
	r := newTestRunner(loader, nil, nil)

	r.Run(context.Background())
	r.Run(context.Background())

	require.Len(t, loader.batches, 2)
	assert.NotEqual(t, loader.batches[0], loader.batches[1])
}

func TestRun_Timestamps(t *testing.T) {
	start := time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC)
	tick := start
	r := newTestRunner(&fakeLoader{}, nil, nil)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	res := r.Run(context.Background())

	assert.Equal(t, start.Add(time.Second), res.StartedAt)
	assert.True(t, res.FinishedAt.After(res.StartedAt))
	assert.Positive(t, res.Duration())
}

func TestEntry(t *testing.T) {
	assert.NoError(t, newTestRunner(&fakeLoader{}, nil, nil).Entry(context.Background()))

	err := newTestRunner(&fakeLoader{}, &countingTrigger{err: errors.New("down")}, nil).Entry(context.Background())
	assert.True(t, etlerr.Is(err, etlerr.KindTrigger))

	failing := &fakeLoader{result: func([]models.AdEventRecord) warehouse.LoadResult {
		return warehouse.LoadResult{Status: warehouse.StatusFailure, Err: etlerr.NewConnectionError("connect", errors.New("refused"))}
	}}
	err = newTestRunner(failing, nil, nil).Entry(context.Background())
	assert.True(t, etlerr.Is(err, etlerr.KindConnection))
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCommitted.Terminal())
	assert.True(t, StateRolledBack.Terminal())
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateGenerating.Terminal())
	assert.False(t, StateLoading.Terminal())
}
