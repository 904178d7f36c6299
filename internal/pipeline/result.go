package pipeline

import "time"

// State is a run's position in Idle -> Generating -> Loading -> {Committed | RolledBack}.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateLoading    State = "loading"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// Stage names the step a run failed in.
type Stage string

const (
	StageConfig  Stage = "config"
	StageLoad    Stage = "load"
	StageTrigger Stage = "trigger"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// RunResult reports one pipeline invocation.
// State is Committed exactly when the batch is durable; a TriggerErr does not change that.
type RunResult struct {
	RunID      string
	Status     Status
	State      State
	Stage      Stage // set on failure
	Table      string
	RowsLoaded int
	ArchiveKey string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	TriggerErr error
	ArchiveErr error
}

// OK reports whether the batch was committed.
func (r RunResult) OK() bool { return r.Status == StatusSuccess }

// Duration returns how long the run took.
func (r RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// LoadSignal is published downstream after a committed load.
type LoadSignal struct {
	RunID       string
	Table       string
	RowsLoaded  int
	CommittedAt time.Time
}
