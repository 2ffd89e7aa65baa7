package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"echopulse/internal/agent"
	"echopulse/internal/containerizer"
	"echopulse/internal/repository"
)

// fakeRuntime implements InventorySource and EventSource for testing.
type fakeRuntime struct {
	mu         sync.Mutex
	containers []containerizer.Container
	err        error
	listCalls  int

	// gate, when set, blocks ListContainers until it is closed.
	gate chan struct{}

	// inFlight tracks concurrent ListContainers calls.
	inFlight    int
	maxInFlight int

	events    chan containerizer.Event
	watchErr  error
	watchCall int
}

func (f *fakeRuntime) set(err error, containers ...containerizer.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers = containers
	f.err = err
}

func (f *fakeRuntime) ListContainers(ctx context.Context) ([]containerizer.Container, error) {
	f.mu.Lock()
	f.listCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.err != nil {
		return nil, f.err
	}
	out := make([]containerizer.Container, len(f.containers))
	copy(out, f.containers)
	return out, nil
}

func (f *fakeRuntime) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeRuntime) WatchEvents(ctx context.Context) (<-chan containerizer.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCall++
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	return f.events, nil
}

// flakyRepo fails Deactivate for one id inside transactions.
type flakyRepo struct {
	*repository.Memory
	failDeactivate string
}

func (f *flakyRepo) InTx(ctx context.Context, fn func(tx agent.Repository) error) error {
	return f.Memory.InTx(ctx, func(tx agent.Repository) error {
		return fn(&flakyTx{Repository: tx, failDeactivate: f.failDeactivate})
	})
}

type flakyTx struct {
	agent.Repository
	failDeactivate string
}

func (t *flakyTx) Deactivate(ctx context.Context, id string, at time.Time) error {
	if id == t.failDeactivate {
		return agent.NewRepositoryError("deactivate", errors.New("disk I/O error"))
	}
	return t.Repository.Deactivate(ctx, id, at)
}

// plainRepo hides the Transactor implementation of the wrapped repository.
type plainRepo struct {
	agent.Repository
}

func container(id, name, status string) containerizer.Container {
	return containerizer.Container{ID: id, Name: name, Status: status}
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func mustList(t *testing.T, repo agent.Repository, activeOnly bool) map[string]agent.Agent {
	t.Helper()
	list, err := repo.List(context.Background(), activeOnly)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	out := make(map[string]agent.Agent, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
