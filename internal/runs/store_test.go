package runs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-marketing/etl/internal/pipeline"
)

// Set REDIS_TEST_ADDR (e.g. localhost:6379) to run against a live Redis.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStore_SaveAndLast(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	table := "etl_test." + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(ctx, keyPrefix+table) })

	store := NewStore(rdb, time.Minute)

	rec, err := store.Last(ctx, table)
	require.NoError(t, err)
	assert.Nil(t, rec)

	started := time.Date(2024, 10, 19, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, pipeline.RunResult{
		RunID:      "r1",
		Status:     pipeline.StatusSuccess,
		State:      pipeline.StateCommitted,
		Table:      table,
		RowsLoaded: 10,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}))

	rec, err = store.Last(ctx, table)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "r1", rec.RunID)
	assert.Equal(t, 10, rec.RowsLoaded)
	assert.True(t, started.Equal(rec.StartedAt))

	ttl, err := rdb.TTL(ctx, keyPrefix+table).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewStore_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewStore(nil, 0).ttl)
}
