package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"echopulse/internal/agent"
	"echopulse/pkg/logging"
)

// Scheduler drives reconciliation cycles.
//
// It manages:
//   - A periodic timer
//   - Out-of-band triggers, collapsed into at most one pending cycle
//   - The single-flight guard that serializes every cycle
//   - Cycle listeners, status and metrics
type Scheduler struct {
	mu sync.RWMutex

	config SchedulerConfig

	runtime    InventorySource
	reconciler *Reconciler
	metrics    *ReconcilerMetrics
	listeners  []CycleListener

	// cycleMu is held for the whole of a cycle, listeners included.
	cycleMu sync.Mutex

	// pending holds at most one trigger waiting for the worker.
	pending chan CycleSource

	// intervalChanges carries SetInterval updates to the worker.
	intervalChanges chan time.Duration

	status Status

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewScheduler creates a scheduler reading inventory from runtime.
func NewScheduler(config SchedulerConfig, runtime InventorySource, reconciler *Reconciler) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = 30 * time.Second
	}

	return &Scheduler{
		config:          config,
		runtime:         runtime,
		reconciler:      reconciler,
		metrics:         NewReconcilerMetrics(),
		pending:         make(chan CycleSource, 1),
		intervalChanges: make(chan time.Duration, 1),
		status:          Status{State: StatePending},
	}
}

// AddListener registers fn to run after every cycle.
func (s *Scheduler) AddListener(fn CycleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start launches the worker. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.runtime == nil || s.reconciler == nil {
		return fmt.Errorf("scheduler requires a runtime and a reconciler")
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.worker(s.ctx, s.config.Interval, s.config.RunOnStart)

	logging.Info("Scheduler", "Started with interval %v", s.config.Interval)
	return nil
}

func (s *Scheduler) worker(ctx context.Context, interval time.Duration, runOnStart bool) {
	defer s.wg.Done()

	if runOnStart && ctx.Err() == nil {
		s.runCycle(ctx, SourceStartup)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Scheduler", "Worker shutting down")
			return

		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.runCycle(ctx, SourcePeriodic)

		case source := <-s.pending:
			// A stop wins over a trigger queued behind the last cycle.
			if ctx.Err() != nil {
				logging.Debug("Scheduler", "Dropping cycle from %s, scheduler stopping", source)
				return
			}
			s.runCycle(ctx, source)

		case d := <-s.intervalChanges:
			ticker.Reset(d)
			logging.Info("Scheduler", "Interval changed to %v", d)
		}
	}
}

// Trigger asks for a cycle as soon as possible without waiting for it.
// Triggers arriving while one is already pending collapse into it. It
// reports whether a new cycle was queued.
func (s *Scheduler) Trigger(source CycleSource) bool {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return false
	}

	select {
	case s.pending <- source:
		logging.Debug("Scheduler", "Queued cycle from %s", source)
		return true
	default:
		logging.Debug("Scheduler", "Cycle already pending, collapsing trigger from %s", source)
		return false
	}
}

// RunOnce runs a cycle on the calling goroutine. It waits for any cycle in
// progress to finish first.
func (s *Scheduler) RunOnce(ctx context.Context) Result {
	return s.runCycle(ctx, SourceManual)
}

func (s *Scheduler) runCycle(ctx context.Context, source CycleSource) Result {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	s.status.State = StateReconciling
	timeout := s.config.CycleTimeout
	listeners := append([]CycleListener(nil), s.listeners...)
	s.mu.Unlock()

	// Stop waits for the cycle instead of cutting it short.
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	result := s.cycle(cycleCtx, source)

	s.metrics.RecordCycle(result)
	s.updateStatus(result)

	for _, fn := range listeners {
		fn(cycleCtx, result)
	}
	return result
}

func (s *Scheduler) cycle(ctx context.Context, source CycleSource) Result {
	started := time.Now().UTC()

	inventory, err := s.runtime.ListContainers(ctx)
	if err != nil {
		// Any failed listing is an unknown inventory, never an empty one.
		logging.Warn("Scheduler", "Skipping cycle from %s, runtime not queryable: %v", source, err)
		if !errors.Is(err, agent.ErrRuntimeUnreachable) {
			err = fmt.Errorf("%w: %w", agent.ErrRuntimeUnreachable, err)
		}
		return Result{
			Source:     source,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Skipped:    true,
			Err:        err,
		}
	}

	result, err := s.reconciler.Reconcile(ctx, inventory)
	result.Source = source
	if err != nil {
		logging.Error("Scheduler", err, "Cycle from %s aborted, retrying next period", source)
		return result
	}

	if result.Changed() {
		logging.Debug("Scheduler", "Cycle from %s: %d active, %d retired",
			source, len(result.Upserted), len(result.Deactivated))
	}
	return result
}

func (s *Scheduler) updateStatus(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := result.FinishedAt
	s.status.LastCycleTime = &finished
	s.status.LastSource = result.Source

	switch {
	case result.Skipped:
		s.status.State = StateSkipped
		s.status.LastError = result.Err.Error()
		s.status.ConsecutiveFailures++
	case result.Err != nil:
		s.status.State = StateError
		s.status.LastError = result.Err.Error()
		s.status.ConsecutiveFailures++
	default:
		s.status.State = StateSynced
		s.status.LastError = ""
		s.status.ConsecutiveFailures = 0
	}
}

// SetInterval changes the period between cycles. A running worker picks the
// new value up on its next loop iteration.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Interval == d {
		return nil
	}
	s.config.Interval = d
	if !s.running {
		return nil
	}

	// Replace a not yet consumed update.
	select {
	case <-s.intervalChanges:
	default:
	}
	s.intervalChanges <- d
	return nil
}

// Stop stops accepting triggers and waits for the in-flight cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	logging.Info("Scheduler", "Stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	// Drop a trigger that arrived after the last cycle.
	select {
	case <-s.pending:
	default:
	}

	logging.Info("Scheduler", "Scheduler stopped")
	return nil
}

// Status returns a copy of the scheduler's status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	status.Interval = s.config.Interval
	status.Running = s.running
	return status
}

// Metrics returns the scheduler's cycle metrics.
func (s *Scheduler) Metrics() *ReconcilerMetrics {
	return s.metrics
}

