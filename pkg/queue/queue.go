package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TypeExtract generates a batch and loads it into the staging table.
	TypeExtract = "marketing_etl:extract_google_ads"
	// TypeTransform runs the downstream transformation models.
	TypeTransform = "marketing_etl:run_dbt_models"
)

// ExtractPayload is the payload for manually requested extract tasks. Scheduled runs carry none.
type ExtractPayload struct {
	RequestID   string    `json:"request_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// TransformPayload is the load-succeeded signal consumed by the transform runner.
type TransformPayload struct {
	RunID       string    `json:"run_id"`
	Table       string    `json:"table"`
	RowsLoaded  int       `json:"rows_loaded"`
	CommittedAt time.Time `json:"committed_at"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue enqueues pipeline tasks via asynq.
type Queue struct {
	client Enqueuer
	logger *zap.Logger

	mu   sync.RWMutex
	opts map[string][]asynq.Option
}

// NewQueue creates a new asynq-backed task queue.
func NewQueue(client Enqueuer, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, opts: make(map[string][]asynq.Option)}
}

// SetTaskOptions sets the default options (retry, timeout) for a task type.
func (q *Queue) SetTaskOptions(taskType string, opts ...asynq.Option) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.opts[taskType] = opts
}

func (q *Queue) optionsFor(taskType string, extra ...asynq.Option) []asynq.Option {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := append([]asynq.Option{}, q.opts[taskType]...)
	return append(out, extra...)
}

// EnqueueTransform publishes the load-succeeded signal. The task id is derived from the run id,
// so a second signal for the same run is dropped.
func (q *Queue) EnqueueTransform(ctx context.Context, payload TransformPayload) (*asynq.TaskInfo, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeTransform, body)
	info, err := q.client.EnqueueContext(ctx, task, q.optionsFor(TypeTransform, asynq.TaskID(TransformTaskID(payload.RunID)))...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Info("transform already enqueued", zap.String("run_id", payload.RunID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue transform: %w", err)
	}
	q.logger.Debug("enqueued transform task", zap.String("task_id", info.ID), zap.String("run_id", payload.RunID))
	return info, nil
}

// EnqueueExtract requests an extract run outside the schedule.
func (q *Queue) EnqueueExtract(ctx context.Context, payload ExtractPayload) (*asynq.TaskInfo, error) {
	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeExtract, body)
	info, err := q.client.EnqueueContext(ctx, task, q.optionsFor(TypeExtract, asynq.TaskID(payload.RequestID))...)
	if err != nil {
		return nil, fmt.Errorf("enqueue extract: %w", err)
	}
	q.logger.Info("enqueued extract task", zap.String("task_id", info.ID), zap.String("requested_by", payload.RequestedBy))
	return info, nil
}

// TransformTaskID returns the task id used for a run's transform signal.
func TransformTaskID(runID string) string {
	return "transform:" + runID
}
