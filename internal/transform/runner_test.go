package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-marketing/etl/pkg/queue"
)

var payload = queue.TransformPayload{RunID: "run-1", Table: "source.raw_google_ads", RowsLoaded: 10}

func TestRun_ExportsSignal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRunner([]string{"sh", "-c", `echo "$ETL_RUN_ID $ETL_TABLE $ETL_ROWS_LOADED"; pwd`}, t.TempDir(), zap.New(core))

	require.NoError(t, r.Run(context.Background(), payload))

	entries := logs.FilterMessage("transform finished").All()
	require.Len(t, entries, 1)
	out := entries[0].ContextMap()["output"].(string)
	assert.True(t, strings.HasPrefix(out, "run-1 source.raw_google_ads 10"), out)
}

func TestRun_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner([]string{"sh", "-c", "touch marker"}, dir, nil)

	require.NoError(t, r.Run(context.Background(), payload))
	assert.FileExists(t, dir+"/marker")
}

func TestRun_Failure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRunner([]string{"sh", "-c", "echo compile error >&2; exit 3"}, "", zap.New(core))

	err := r.Run(context.Background(), payload)

	assert.ErrorContains(t, err, "exit status 3")
	entries := logs.FilterMessage("transform failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "compile error", entries[0].ContextMap()["output"])
}

func TestRun_EmptyCommand(t *testing.T) {
	assert.Error(t, NewRunner(nil, "", nil).Run(context.Background(), payload))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, NewRunner([]string{"sleep", "5"}, "", nil).Run(ctx, payload))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc\n", 10))
	assert.Equal(t, "cde", tail("abcde", 3))
}
