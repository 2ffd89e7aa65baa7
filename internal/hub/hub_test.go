package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echopulse/internal/agent"
	"echopulse/internal/containerizer"
	"echopulse/internal/reconciler"
	"echopulse/internal/repository"
)

type fakeObserver struct {
	id string

	mu       sync.Mutex
	messages [][]byte
	sendErr  error
	closed   int
}

func newFakeObserver(id string) *fakeObserver { return &fakeObserver{id: id} }

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Send(ctx context.Context, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.messages = append(o.messages, append([]byte(nil), data...))
	return nil
}

func (o *fakeObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeObserver) received() []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]map[string]any, 0, len(o.messages))
	for _, m := range o.messages {
		var v map[string]any
		_ = json.Unmarshal(m, &v)
		out = append(out, v)
	}
	return out
}

func (o *fakeObserver) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := o.received()
	require.NotEmpty(t, msgs, "observer %s received nothing", o.id)
	return msgs[len(msgs)-1]
}

type fakeCommander struct {
	mu        sync.Mutex
	calls     []string
	failOn    map[string]error
	createdID string
	logs      string
	lastTail  int
	lastSpec  containerizer.AgentSpec
}

func (c *fakeCommander) record(op, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op+":"+id)
	if err, ok := c.failOn[op]; ok {
		return err
	}
	return nil
}

func (c *fakeCommander) StartContainer(ctx context.Context, id string) error {
	return c.record("start", id)
}

func (c *fakeCommander) StopContainer(ctx context.Context, id string) error {
	return c.record("stop", id)
}

func (c *fakeCommander) RestartContainer(ctx context.Context, id string) error {
	return c.record("restart", id)
}

func (c *fakeCommander) CreateAgent(ctx context.Context, spec containerizer.AgentSpec) (string, error) {
	c.mu.Lock()
	c.lastSpec = spec
	c.mu.Unlock()
	if err := c.record("create", spec.Name); err != nil {
		return "", err
	}
	return c.createdID, nil
}

func (c *fakeCommander) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	c.mu.Lock()
	c.lastTail = tail
	c.mu.Unlock()
	if err := c.record("logs", id); err != nil {
		return "", err
	}
	return c.logs, nil
}

type fakeTrigger struct {
	mu      sync.Mutex
	sources []reconciler.CycleSource
}

func (f *fakeTrigger) Trigger(source reconciler.CycleSource) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return true
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

// failingRepo fails every Deactivate.
type failingRepo struct {
	agent.Repository
}

func (failingRepo) Deactivate(ctx context.Context, id string, at time.Time) error {
	return agent.NewRepositoryError("deactivate", errors.New("database is locked"))
}

type hubFixture struct {
	hub     *Hub
	repo    *repository.Memory
	runtime *fakeCommander
	trigger *fakeTrigger
}

func newFixture(t *testing.T) *hubFixture {
	t.Helper()
	repo := repository.NewMemory()
	rt := &fakeCommander{failOn: map[string]error{}, createdID: "c0ffee000000111", logs: "line one\nline two\n"}
	trig := &fakeTrigger{}
	return &hubFixture{hub: New(Config{}, repo, rt, trig), repo: repo, runtime: rt, trigger: trig}
}

func seed(t *testing.T, repo agent.Repository, id, status string, active bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, agent.Observe(id, "agent-"+id, status, time.Now().UTC())))
	if !active {
		require.NoError(t, repo.Deactivate(ctx, id, time.Now().UTC()))
	}
}

func TestConnectDisconnect(t *testing.T) {
	f := newFixture(t)
	o := newFakeObserver("o1")

	f.hub.Connect(o)
	assert.Equal(t, 1, f.hub.Count())
	assert.Empty(t, o.received(), "no snapshot is pushed on connect")

	f.hub.Disconnect(o)
	f.hub.Disconnect(o)
	assert.Equal(t, 0, f.hub.Count())
	assert.Equal(t, 0, o.closed, "Disconnect does not close")
}

func TestBroadcastIsolatesFailingObserver(t *testing.T) {
	f := newFixture(t)
	o1, o2, o3 := newFakeObserver("o1"), newFakeObserver("o2"), newFakeObserver("o3")
	o2.sendErr = errors.New("broken pipe")
	for _, o := range []*fakeObserver{o1, o2, o3} {
		f.hub.Connect(o)
	}

	dropped, err := f.hub.Broadcast(context.Background(), map[string]string{"type": "ping"})
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	assert.Len(t, o1.received(), 1)
	assert.Len(t, o3.received(), 1)
	assert.Equal(t, 1, o2.closed)
	assert.Equal(t, 2, f.hub.Count())

	// The next broadcast reaches only the survivors.
	_, err = f.hub.Broadcast(context.Background(), map[string]string{"type": "ping"})
	require.NoError(t, err)
	assert.Len(t, o1.received(), 2)
	assert.Len(t, o3.received(), 2)
}

func TestBroadcastManyObservers(t *testing.T) {
	repo := repository.NewMemory()
	h := New(Config{FanOutLimit: 4}, repo, &fakeCommander{}, nil)

	observers := make([]*fakeObserver, 50)
	for i := range observers {
		observers[i] = newFakeObserver(fmt.Sprintf("o%02d", i))
		h.Connect(observers[i])
	}

	_, err := h.Broadcast(context.Background(), NewFullUpdate(Snapshot{}))
	require.NoError(t, err)
	for _, o := range observers {
		assert.Len(t, o.received(), 1, "observer %s", o.id)
	}
}

func TestPublishFullUpdate(t *testing.T) {
	f := newFixture(t)
	seed(t, f.repo, "aaa", "running", true)
	seed(t, f.repo, "bbb", "exited", false)
	o := newFakeObserver("o1")
	f.hub.Connect(o)

	require.NoError(t, f.hub.Publish(context.Background()))

	msg := o.last(t)
	assert.Equal(t, "full_update", msg["type"])
	assert.EqualValues(t, SchemaVersion, msg["schema_version"])

	payload := msg["payload"].(map[string]any)
	active := payload["active_agents"].([]any)
	garden := payload["memory_garden"].([]any)
	require.Len(t, active, 1)
	require.Len(t, garden, 1)
	assert.Equal(t, "aaa", active[0].(map[string]any)["id"])
	assert.Equal(t, "Echo Plaza", active[0].(map[string]any)["zone"])
	assert.Equal(t, false, garden[0].(map[string]any)["is_active"])
	assert.Equal(t, []any{}, garden[0].(map[string]any)["thought_log"])
}

func TestPublishEmptyListsEncodeAsArrays(t *testing.T) {
	f := newFixture(t)
	o := newFakeObserver("o1")
	f.hub.Connect(o)

	require.NoError(t, f.hub.Publish(context.Background()))

	o.mu.Lock()
	raw := string(o.messages[0])
	o.mu.Unlock()
	assert.Contains(t, raw, `"active_agents":[]`)
	assert.Contains(t, raw, `"memory_garden":[]`)
}

func TestOnCyclePublishes(t *testing.T) {
	f := newFixture(t)
	o := newFakeObserver("o1")

	// Without observers nothing is read or sent.
	f.hub.OnCycle(context.Background(), reconciler.Result{Source: reconciler.SourcePeriodic})

	f.hub.Connect(o)
	f.hub.OnCycle(context.Background(), reconciler.Result{Source: reconciler.SourcePeriodic, Skipped: true})
	assert.Equal(t, "full_update", o.last(t)["type"])
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	o1, o2 := newFakeObserver("o1"), newFakeObserver("o2")
	f.hub.Connect(o1)
	f.hub.Connect(o2)

	f.hub.CloseAll()

	assert.Equal(t, 0, f.hub.Count())
	assert.Equal(t, 1, o1.closed)
	assert.Equal(t, 1, o2.closed)
}
