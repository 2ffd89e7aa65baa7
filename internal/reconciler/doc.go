// Package reconciler keeps the agent repository in step with the container
// runtime.
//
// # Overview
//
// A cycle reads the runtime inventory, upserts every container as an active
// agent and deactivates every previously active agent that is gone. Records
// are never deleted; retired agents form the memory garden. A retired agent
// whose container is still listed stays there until the container drops out
// of an inventory and reappears.
//
// # Architecture
//
//   - Reconciler: applies one inventory to the repository, atomically when the
//     repository supports transactions
//   - Scheduler: runs cycles on a timer and on demand, one at a time
//   - EventDetector: debounces runtime lifecycle events into scheduler triggers
//   - ReconcilerMetrics: per-source cycle counters
//
// # Single flight
//
// Every cycle, whether periodic, triggered or run through RunOnce, holds the
// same guard from the inventory query until its listeners return. Triggers
// that arrive while a cycle is pending collapse into it, so a burst of
// commands costs at most one extra cycle.
//
// # Unreachable runtime
//
// A runtime that cannot be listed yields a skipped cycle: nothing is written
// and listeners receive a Result with Skipped set. Only a successful, empty
// listing deactivates every agent.
//
// Example usage:
//
//	sched := reconciler.NewScheduler(reconciler.SchedulerConfig{Interval: 5 * time.Second},
//	    runtime, reconciler.NewReconciler(repo))
//	sched.AddListener(func(ctx context.Context, _ reconciler.Result) { hub.Publish(ctx) })
//	if err := sched.Start(ctx); err != nil {
//	    return fmt.Errorf("failed to start reconciliation: %w", err)
//	}
//	defer sched.Stop()
package reconciler
