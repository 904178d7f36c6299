// Package pipeline composes generation and loading into one stateless run.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/internal/models"
	"github.com/aura-marketing/etl/internal/warehouse"
	"github.com/aura-marketing/etl/pkg/etlerr"
)

// signalTimeout bounds post-commit side effects (archive, trigger).
const signalTimeout = 30 * time.Second

// ConfigProvider supplies warehouse credentials for each run.
type ConfigProvider interface {
	ConnectionConfig() (warehouse.ConnectionConfig, error)
}

// Generator produces a batch of records.
type Generator interface {
	Generate(count int) []models.AdEventRecord
}

// Loader writes a batch atomically.
type Loader interface {
	Load(ctx context.Context, records []models.AdEventRecord, dest warehouse.TableRef, cfg warehouse.ConnectionConfig) warehouse.LoadResult
}

// Trigger receives the load-succeeded signal.
type Trigger interface {
	Fire(ctx context.Context, signal LoadSignal) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, signal LoadSignal) error

// Fire calls f.
func (f TriggerFunc) Fire(ctx context.Context, signal LoadSignal) error { return f(ctx, signal) }

// NopTrigger discards signals.
var NopTrigger = TriggerFunc(func(context.Context, LoadSignal) error { return nil })

// Archiver copies a committed batch to object storage and returns the object key.
type Archiver interface {
	Archive(ctx context.Context, runID string, table warehouse.TableRef, records []models.AdEventRecord) (string, error)
}

// Settings are the per-run knobs.
type Settings struct {
	BatchSize int
	Table     warehouse.TableRef
}

// Runner runs generate -> load -> signal. It holds no per-run state and is safe for concurrent use.
type Runner struct {
	provider ConfigProvider
	gen      Generator
	loader   Loader
	trigger  Trigger
	archiver Archiver
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewRunner creates a pipeline runner. A nil trigger discards signals.
func NewRunner(provider ConfigProvider, gen Generator, loader Loader, trigger Trigger, settings Settings, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trigger == nil {
		trigger = NopTrigger
	}
	if settings.Table.Name == "" {
		settings.Table = warehouse.DefaultTable
	}
	return &Runner{
		provider: provider,
		gen:      gen,
		loader:   loader,
		trigger:  trigger,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetArchiver enables copying committed batches to object storage.
func (r *Runner) SetArchiver(a Archiver) {
	r.archiver = a
}

// Table returns the destination table.
func (r *Runner) Table() warehouse.TableRef { return r.settings.Table }

// Entry runs once and returns nil only if the batch was committed and signalled.
func (r *Runner) Entry(ctx context.Context) error {
	res := r.Run(ctx)
	if res.Err != nil {
		return res.Err
	}
	return res.TriggerErr
}

// Run performs one generate+load cycle. Failures are returned, never retried here.
func (r *Runner) Run(ctx context.Context) RunResult {
	res := RunResult{
		RunID:     r.newID(),
		Status:    StatusFailure,
		State:     StateIdle,
		Table:     r.settings.Table.String(),
		StartedAt: r.now(),
	}
	log := r.logger.With(zap.String("run_id", res.RunID), zap.String("table", res.Table))

	cc, err := r.resolveConfig()
	if err != nil {
		return r.fail(res, StageConfig, err, log)
	}

	res.State = StateGenerating
	records := r.gen.Generate(r.settings.BatchSize)
	log.Debug("batch generated", zap.Int("rows", len(records)))

	res.State = StateLoading
	lr := r.loader.Load(ctx, records, r.settings.Table, cc)
	if !lr.OK() {
		return r.fail(res, StageLoad, lr.Err, log)
	}
	res.State = StateCommitted
	res.Status = StatusSuccess
	res.RowsLoaded = lr.RowsLoaded
	committedAt := r.now()

	// The batch is durable; archive and signal even if the caller has given up.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signalTimeout)
	defer cancel()

	if r.archiver != nil {
		key, err := r.archiver.Archive(sctx, res.RunID, r.settings.Table, records)
		if err != nil {
			res.ArchiveErr = err
			log.Warn("archive batch", zap.Error(err))
		} else {
			res.ArchiveKey = key
		}
	}

	signal := LoadSignal{RunID: res.RunID, Table: res.Table, RowsLoaded: res.RowsLoaded, CommittedAt: committedAt}
	if err := r.trigger.Fire(sctx, signal); err != nil {
		res.Stage = StageTrigger
		res.TriggerErr = etlerr.NewTriggerError(err)
		log.Error("downstream trigger failed", zap.Error(err))
	}

	res.FinishedAt = r.now()
	log.Info("run committed",
		zap.Int("rows", res.RowsLoaded),
		zap.String("state", string(res.State)),
		zap.Duration("duration", res.Duration()),
	)
	return res
}

func (r *Runner) resolveConfig() (warehouse.ConnectionConfig, error) {
	cc, err := r.provider.ConnectionConfig()
	if err != nil {
		if etlerr.Is(err, etlerr.KindConfiguration) {
			return cc, err
		}
		cfgErr := etlerr.NewConfigurationError("resolve connection config")
		cfgErr.Err = err
		return cc, cfgErr
	}
	if err := cc.Validate(); err != nil {
		return cc, err
	}
	return cc, nil
}

func (r *Runner) fail(res RunResult, stage Stage, err error, log *zap.Logger) RunResult {
	res.State = StateRolledBack
	res.Stage = stage
	res.Err = err
	res.FinishedAt = r.now()
	log.Error("run failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(etlerr.KindOf(err))),
		zap.Bool("retryable", etlerr.IsRetryable(err)),
		zap.Error(err),
	)
	return res
}
