package reconciler

import (
	"sync"
	"time"

	"echopulse/pkg/logging"
)

// ReconcilerMetrics tracks reconciliation cycles for monitoring.
//
// Counters are kept overall and per cycle source, so a runtime event storm can
// be told apart from the periodic baseline.
type ReconcilerMetrics struct {
	mu sync.RWMutex

	perSource map[CycleSource]*sourceMetrics

	totalAttempts    int64
	totalSuccesses   int64
	totalFailures    int64
	totalSkips       int64
	totalUpserted    int64
	totalDeactivated int64
	lastCycleAt      time.Time
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	lastCycleLatency time.Duration
}

type sourceMetrics struct {
	Attempts  int64
	Successes int64
	Failures  int64
	Skips     int64
}

// NewReconcilerMetrics creates a new ReconcilerMetrics instance.
func NewReconcilerMetrics() *ReconcilerMetrics {
	return &ReconcilerMetrics{
		perSource: make(map[CycleSource]*sourceMetrics),
	}
}

func (m *ReconcilerMetrics) source(src CycleSource) *sourceMetrics {
	if sm, ok := m.perSource[src]; ok {
		return sm
	}
	sm := &sourceMetrics{}
	m.perSource[src] = sm
	return sm
}

// RecordCycle records the outcome of a finished cycle.
func (m *ReconcilerMetrics) RecordCycle(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.source(result.Source)
	sm.Attempts++
	m.totalAttempts++
	m.lastCycleAt = result.FinishedAt
	m.lastCycleLatency = result.FinishedAt.Sub(result.StartedAt)

	switch {
	case result.Skipped:
		sm.Skips++
		m.totalSkips++
	case result.Err != nil:
		sm.Failures++
		m.totalFailures++
		m.lastFailureAt = result.FinishedAt
		logging.Warn("ReconcilerMetrics", "Cycle from %s failed: %v (failures: %d)",
			result.Source, result.Err, m.totalFailures)
	default:
		sm.Successes++
		m.totalSuccesses++
		m.totalUpserted += int64(len(result.Upserted))
		m.totalDeactivated += int64(len(result.Deactivated))
		m.lastSuccessAt = result.FinishedAt
	}
}

// ReconcilerMetricsSummary provides a summary of reconciliation metrics.
type ReconcilerMetricsSummary struct {
	TotalAttempts    int64                            `json:"total_attempts"`
	TotalSuccesses   int64                            `json:"total_successes"`
	TotalFailures    int64                            `json:"total_failures"`
	TotalSkips       int64                            `json:"total_skips"`
	TotalUpserted    int64                            `json:"total_upserted"`
	TotalDeactivated int64                            `json:"total_deactivated"`
	LastCycleAt      time.Time                        `json:"last_cycle_at,omitempty"`
	LastSuccessAt    time.Time                        `json:"last_success_at,omitempty"`
	LastFailureAt    time.Time                        `json:"last_failure_at,omitempty"`
	LastCycleMillis  int64                            `json:"last_cycle_ms"`
	PerSource        map[CycleSource]SourceMetricView `json:"per_source"`
	FailureRate      float64                          `json:"failure_rate"`
}

// SourceMetricView is a read-only view of per-source counters.
type SourceMetricView struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Skips     int64 `json:"skips"`
}

// GetSummary returns a snapshot of all counters.
func (m *ReconcilerMetrics) GetSummary() ReconcilerMetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := ReconcilerMetricsSummary{
		TotalAttempts:    m.totalAttempts,
		TotalSuccesses:   m.totalSuccesses,
		TotalFailures:    m.totalFailures,
		TotalSkips:       m.totalSkips,
		TotalUpserted:    m.totalUpserted,
		TotalDeactivated: m.totalDeactivated,
		LastCycleAt:      m.lastCycleAt,
		LastSuccessAt:    m.lastSuccessAt,
		LastFailureAt:    m.lastFailureAt,
		LastCycleMillis:  m.lastCycleLatency.Milliseconds(),
		PerSource:        make(map[CycleSource]SourceMetricView, len(m.perSource)),
	}
	for src, sm := range m.perSource {
		summary.PerSource[src] = SourceMetricView(*sm)
	}
	if m.totalAttempts > 0 {
		summary.FailureRate = float64(m.totalFailures+m.totalSkips) / float64(m.totalAttempts)
	}
	return summary
}

