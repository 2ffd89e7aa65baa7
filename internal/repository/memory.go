package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"echopulse/internal/agent"
)

// ErrClosed is returned by operations on a closed repository.
var ErrClosed = errors.New("repository closed")

// Memory is an in-process Repository. Transactions apply to a copy of the
// record set that replaces the live one only when fn succeeds.
type Memory struct {
	mu      sync.RWMutex
	records agentSet
	closed  bool
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{records: make(agentSet)}
}

func (m *Memory) Upsert(ctx context.Context, a agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return agent.NewRepositoryError("upsert", ErrClosed)
	}
	m.records.upsert(a)
	return nil
}

func (m *Memory) List(ctx context.Context, activeOnly bool) ([]agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, agent.NewRepositoryError("list", ErrClosed)
	}
	return m.records.list(activeOnly), nil
}

func (m *Memory) ListInactive(ctx context.Context) ([]agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, agent.NewRepositoryError("list inactive", ErrClosed)
	}
	return m.records.inactive(), nil
}

func (m *Memory) Deactivate(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return agent.NewRepositoryError("deactivate", ErrClosed)
	}
	m.records.deactivate(id, at)
	return nil
}

// InTx runs fn against a private copy and commits it if fn returns nil.
func (m *Memory) InTx(ctx context.Context, fn func(tx agent.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return agent.NewRepositoryError("begin", ErrClosed)
	}

	tx := &memoryTx{records: m.records.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.records = tx.records
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// memoryTx is the Repository handed to InTx callbacks. The parent's lock is
// held for its whole lifetime.
type memoryTx struct {
	records agentSet
}

func (t *memoryTx) Upsert(ctx context.Context, a agent.Agent) error {
	t.records.upsert(a)
	return nil
}

func (t *memoryTx) List(ctx context.Context, activeOnly bool) ([]agent.Agent, error) {
	return t.records.list(activeOnly), nil
}

func (t *memoryTx) ListInactive(ctx context.Context) ([]agent.Agent, error) {
	return t.records.inactive(), nil
}

func (t *memoryTx) Deactivate(ctx context.Context, id string, at time.Time) error {
	t.records.deactivate(id, at)
	return nil
}

func (t *memoryTx) Close() error { return nil }

type agentSet map[string]agent.Agent

func (s agentSet) upsert(a agent.Agent) {
	if existing, ok := s[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
		a.ThoughtLog = existing.ThoughtLog
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
	s[a.ID] = a
}

func (s agentSet) deactivate(id string, at time.Time) {
	a, ok := s[id]
	if !ok {
		return
	}
	a.IsActive = false
	a.UpdatedAt = at
	s[id] = a
}

func (s agentSet) list(activeOnly bool) []agent.Agent {
	out := make([]agent.Agent, 0, len(s))
	for _, a := range s {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s agentSet) inactive() []agent.Agent {
	out := make([]agent.Agent, 0)
	for _, a := range s {
		if !a.IsActive {
			out = append(out, a)
		}
	}
	sortByUpdatedDesc(out)
	return out
}

func (s agentSet) clone() agentSet {
	c := make(agentSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func sortByUpdatedDesc(agents []agent.Agent) {
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].UpdatedAt.Equal(agents[j].UpdatedAt) {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].UpdatedAt.After(agents[j].UpdatedAt)
	})
}
