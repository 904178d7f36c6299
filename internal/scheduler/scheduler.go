// Package scheduler runs registered callables on a cron schedule with bounded retries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/pkg/etlerr"
)

// RetryPolicy bounds how often a failed task is retried and how long to wait in between.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy is three retries five minutes apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 5 * time.Minute}
}

// Callable is a zero-argument unit of work. Use Payload to read the task body.
type Callable func(ctx context.Context) error

type payloadKey struct{}

// Payload returns the payload of the task being processed, or nil.
func Payload(ctx context.Context) []byte {
	b, _ := ctx.Value(payloadKey{}).([]byte)
	return b
}

type registration struct {
	policy RetryPolicy
}

type entry struct {
	taskID   string
	cronspec string
}

// Scheduler maps task ids to callables and owns the asynq server and scheduler.
type Scheduler struct {
	mu       sync.RWMutex
	tasks    map[string]registration
	periodic []entry
	mux      *asynq.ServeMux
	logger   *zap.Logger
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tasks:  make(map[string]registration),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

// Register binds fn to taskID. A task id may be registered once.
func (s *Scheduler) Register(taskID string, fn Callable, policy RetryPolicy) error {
	if taskID == "" || fn == nil {
		return errors.New("scheduler: task id and callable are required")
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; ok {
		return fmt.Errorf("scheduler: task %q already registered", taskID)
	}
	s.tasks[taskID] = registration{policy: policy}
	s.mux.HandleFunc(taskID, s.handle(taskID, fn))
	return nil
}

// Schedule enqueues taskID on cronspec once Run starts. Overlapping runs are independent.
func (s *Scheduler) Schedule(taskID, cronspec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("scheduler: task %q is not registered", taskID)
	}
	s.periodic = append(s.periodic, entry{taskID: taskID, cronspec: cronspec})
	return nil
}

// Policy returns the retry policy registered for taskID.
func (s *Scheduler) Policy(taskID string) (RetryPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[taskID]
	return r.policy, ok
}

// TaskOptions returns the enqueue options implied by taskID's policy.
func (s *Scheduler) TaskOptions(taskID string) []asynq.Option {
	p, ok := s.Policy(taskID)
	if !ok {
		return nil
	}
	return []asynq.Option{asynq.MaxRetry(p.MaxRetries)}
}

// RetryDelay is the asynq RetryDelayFunc: a fixed delay per registered task type.
func (s *Scheduler) RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if p, ok := s.Policy(t.Type()); ok && p.Delay > 0 {
		return p.Delay
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

// ProcessTask dispatches t to its registered callable.
func (s *Scheduler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return s.mux.ProcessTask(ctx, t)
}

func (s *Scheduler) handle(taskID string, fn Callable) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		id, _ := asynq.GetTaskID(ctx)
		log := s.logger.With(
			zap.String("task_type", taskID),
			zap.String("task_id", id),
			zap.Int("retry", retried),
		)

		err := fn(context.WithValue(ctx, payloadKey{}, t.Payload()))
		if err == nil {
			log.Info("task succeeded")
			return nil
		}
		if !etlerr.IsRetryable(err) {
			log.Error("task failed, not retrying", zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Warn("task failed", zap.Int("retries_left", maxRetry-retried), zap.Error(err))
		return err
	}
}

// Run starts the asynq server and the periodic scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, redisOpt asynq.RedisConnOpt, concurrency int) error {
	sugar := s.logger.Sugar()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		RetryDelayFunc: s.RetryDelay,
		Logger:         sugar,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
				s.logger.Error("task exhausted", zap.String("task_type", t.Type()), zap.Error(err))
			}
		}),
	})

	sched := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: sugar,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				s.logger.Error("enqueue scheduled task", zap.Error(err))
				return
			}
			s.logger.Info("scheduled task enqueued", zap.String("task_type", info.Type), zap.String("task_id", info.ID))
		},
	})

	s.mu.RLock()
	periodic := append([]entry(nil), s.periodic...)
	s.mu.RUnlock()
	for _, e := range periodic {
		if _, err := sched.Register(e.cronspec, asynq.NewTask(e.taskID, nil), s.TaskOptions(e.taskID)...); err != nil {
			return fmt.Errorf("schedule %s: %w", e.taskID, err)
		}
		s.logger.Info("task scheduled", zap.String("task_type", e.taskID), zap.String("cron", e.cronspec))
	}

	if err := srv.Start(s); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := sched.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	s.logger.Info("scheduler shutting down")
	sched.Shutdown()
	srv.Shutdown()
	return nil
}
