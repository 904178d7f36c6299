// Package transform runs the downstream model build after a committed load.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-marketing/etl/pkg/queue"
)

// maxLoggedOutput caps command output carried into log entries.
const maxLoggedOutput = 4096

// Runner executes the configured transform command once per signal.
type Runner struct {
	args   []string
	dir    string
	logger *zap.Logger
}

// NewRunner creates a runner for argv args executed in dir.
func NewRunner(args []string, dir string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{args: args, dir: dir, logger: logger}
}

// Run executes the command with the signal exported as ETL_* environment variables.
func (r *Runner) Run(ctx context.Context, p queue.TransformPayload) error {
	if len(r.args) == 0 {
		return errors.New("transform command is empty")
	}
	cmd := exec.CommandContext(ctx, r.args[0], r.args[1:]...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"ETL_RUN_ID="+p.RunID,
		"ETL_TABLE="+p.Table,
		"ETL_ROWS_LOADED="+strconv.Itoa(p.RowsLoaded),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log := r.logger.With(zap.String("run_id", p.RunID), zap.String("command", strings.Join(r.args, " ")))
	start := time.Now()
	err := cmd.Run()
	output := tail(out.String(), maxLoggedOutput)
	if err != nil {
		log.Error("transform failed", zap.Error(err), zap.String("output", output))
		return fmt.Errorf("transform %q: %w", r.args[0], err)
	}
	log.Info("transform finished", zap.Duration("duration", time.Since(start)), zap.String("output", output))
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
