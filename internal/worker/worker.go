package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/internal/pipeline"
	"github.com/aura-marketing/etl/internal/scheduler"
	"github.com/aura-marketing/etl/pkg/queue"
)

// PipelineRunner is satisfied by *pipeline.Runner.
type PipelineRunner interface {
	Run(ctx context.Context) pipeline.RunResult
}

// ResultRecorder persists the outcome of a run.
type ResultRecorder interface {
	Save(ctx context.Context, res pipeline.RunResult) error
}

// TransformRunner is satisfied by *transform.Runner.
type TransformRunner interface {
	Run(ctx context.Context, p queue.TransformPayload) error
}

// TransformEnqueuer is satisfied by *queue.Queue.
type TransformEnqueuer interface {
	EnqueueTransform(ctx context.Context, payload queue.TransformPayload) (*asynq.TaskInfo, error)
}

// ExtractJob runs one generate-and-load cycle per task.
type ExtractJob struct {
	runner   PipelineRunner
	recorder ResultRecorder
	logger   *zap.Logger
}

// NewExtractJob creates the extract handler. recorder may be nil.
func NewExtractJob(runner PipelineRunner, recorder ResultRecorder, logger *zap.Logger) *ExtractJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractJob{runner: runner, recorder: recorder, logger: logger}
}

// Run executes the pipeline. The returned error drives the scheduler's retry decision.
func (j *ExtractJob) Run(ctx context.Context) error {
	res := j.runner.Run(ctx)
	if j.recorder != nil {
		if err := j.recorder.Save(context.WithoutCancel(ctx), res); err != nil {
			j.logger.Warn("save run result", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	if res.Err != nil {
		return res.Err
	}
	return res.TriggerErr
}

// TransformJob runs the transform command for a load-succeeded signal.
type TransformJob struct {
	runner TransformRunner
	logger *zap.Logger
}

// NewTransformJob creates the transform handler.
func NewTransformJob(runner TransformRunner, logger *zap.Logger) *TransformJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransformJob{runner: runner, logger: logger}
}

// Run decodes the task payload and runs the transform.
func (j *TransformJob) Run(ctx context.Context) error {
	var payload queue.TransformPayload
	if err := json.Unmarshal(scheduler.Payload(ctx), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	j.logger.Info("transform started", zap.String("run_id", payload.RunID), zap.Int("rows", payload.RowsLoaded))
	return j.runner.Run(ctx, payload)
}

// QueueTrigger publishes load signals as transform tasks.
type QueueTrigger struct {
	q TransformEnqueuer
}

// NewQueueTrigger adapts q to pipeline.Trigger.
func NewQueueTrigger(q TransformEnqueuer) *QueueTrigger {
	return &QueueTrigger{q: q}
}

// Fire enqueues the transform task for s.
func (t *QueueTrigger) Fire(ctx context.Context, s pipeline.LoadSignal) error {
	_, err := t.q.EnqueueTransform(ctx, queue.TransformPayload{
		RunID:       s.RunID,
		Table:       s.Table,
		RowsLoaded:  s.RowsLoaded,
		CommittedAt: s.CommittedAt,
	})
	return err
}
