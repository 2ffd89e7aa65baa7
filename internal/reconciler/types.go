package reconciler

import (
	"context"
	"time"

	"echopulse/internal/containerizer"
)

// CycleSource indicates what started a reconciliation cycle.
type CycleSource string

const (
	// SourceStartup is the cycle run once before the scheduler starts ticking.
	SourceStartup CycleSource = "Startup"

	// SourcePeriodic indicates the cycle was started by the interval timer.
	SourcePeriodic CycleSource = "Periodic"

	// SourceCommand indicates an observer command changed the runtime.
	SourceCommand CycleSource = "Command"

	// SourceRuntimeEvent indicates the container engine reported a lifecycle event.
	SourceRuntimeEvent CycleSource = "RuntimeEvent"

	// SourceManual indicates the cycle was requested through RunOnce.
	SourceManual CycleSource = "Manual"
)

// Result is the outcome of one reconciliation cycle.
type Result struct {
	// Source is what started the cycle.
	Source CycleSource

	// StartedAt and FinishedAt bracket the cycle.
	StartedAt  time.Time
	FinishedAt time.Time

	// Upserted holds the ids written as active, sorted.
	Upserted []string

	// Deactivated holds the ids retired by this cycle, sorted.
	Deactivated []string

	// Skipped is set when the runtime could not be queried. No record was touched.
	Skipped bool

	// Err is the reason the cycle was skipped or aborted.
	Err error
}

// Changed reports whether the cycle wrote anything.
func (r Result) Changed() bool {
	return len(r.Upserted) > 0 || len(r.Deactivated) > 0
}

// InventorySource is the part of the container runtime a cycle reads from.
type InventorySource interface {
	ListContainers(ctx context.Context) ([]containerizer.Container, error)
}

// CycleListener is called after every completed cycle, once its writes are
// committed. Listeners run inside the single-flight guard.
type CycleListener func(ctx context.Context, result Result)

// SchedulerConfig holds configuration for the Scheduler.
type SchedulerConfig struct {
	// Interval is the period between cycles.
	// Defaults to 5 seconds if not specified.
	Interval time.Duration

	// CycleTimeout bounds a single cycle including the inventory query.
	// Defaults to 30 seconds if not specified.
	CycleTimeout time.Duration

	// RunOnStart runs one cycle before the first tick.
	RunOnStart bool
}

// ReconcileState represents the state of the reconciliation loop.
type ReconcileState string

const (
	// StatePending means no cycle has completed yet.
	StatePending ReconcileState = "Pending"

	// StateReconciling means a cycle is in progress.
	StateReconciling ReconcileState = "Reconciling"

	// StateSynced means the last cycle committed.
	StateSynced ReconcileState = "Synced"

	// StateError means the last cycle was aborted by a repository failure.
	StateError ReconcileState = "Error"

	// StateSkipped means the last cycle found the runtime unreachable.
	StateSkipped ReconcileState = "Skipped"
)

// Status describes the scheduler's most recent activity.
type Status struct {
	State ReconcileState `json:"state"`

	// LastCycleTime is when the last cycle finished.
	LastCycleTime *time.Time `json:"last_cycle_time,omitempty"`

	LastSource CycleSource `json:"last_source,omitempty"`

	// LastError is the most recent failure, if any.
	LastError string `json:"last_error,omitempty"`

	// ConsecutiveFailures counts skipped or aborted cycles since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
}
