// Package runs keeps the outcome of recent pipeline runs and exposes them over HTTP.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aura-marketing/etl/internal/pipeline"
	"github.com/aura-marketing/etl/pkg/etlerr"
)

// DefaultTTL is how long the last run of a table is kept.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "marketing_etl:runs:last:"

// Record is the stored view of a pipeline.RunResult.
type Record struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	State        string    `json:"state"`
	Stage        string    `json:"stage,omitempty"`
	Table        string    `json:"table"`
	RowsLoaded   int       `json:"rows_loaded"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Retryable    bool      `json:"retryable"`
	TriggerError string    `json:"trigger_error,omitempty"`
	ArchiveError string    `json:"archive_error,omitempty"`
}

// FromResult converts a run result to a Record.
func FromResult(res pipeline.RunResult) Record {
	rec := Record{
		RunID:      res.RunID,
		Status:     string(res.Status),
		State:      string(res.State),
		Stage:      string(res.Stage),
		Table:      res.Table,
		RowsLoaded: res.RowsLoaded,
		ArchiveKey: res.ArchiveKey,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
		rec.ErrorKind = string(etlerr.KindOf(res.Err))
		rec.Retryable = etlerr.IsRetryable(res.Err)
	}
	if res.TriggerErr != nil {
		rec.TriggerError = res.TriggerErr.Error()
	}
	if res.ArchiveErr != nil {
		rec.ArchiveError = res.ArchiveErr.Error()
	}
	return rec
}

// Store keeps the last run per table in Redis.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewStore creates a run store. A non-positive ttl uses DefaultTTL.
func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Save overwrites the last run of res.Table.
func (s *Store) Save(ctx context.Context, res pipeline.RunResult) error {
	data, err := json.Marshal(FromResult(res))
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+res.Table, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Last returns the last run of table, or nil if none is stored.
func (s *Store) Last(ctx context.Context, table string) (*Record, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+table).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &rec, nil
}
