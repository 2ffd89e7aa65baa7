package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"echopulse/internal/agent"
	"echopulse/internal/containerizer"
	"echopulse/internal/reconciler"
	"echopulse/pkg/logging"
)

// Observer is one connected client.
type Observer interface {
	ID() string

	// Send delivers one serialized message. It must be safe to call
	// concurrently with Close.
	Send(ctx context.Context, data []byte) error

	Close() error
}

// Commander is the part of the container runtime observers may drive.
type Commander interface {
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	RestartContainer(ctx context.Context, containerID string) error
	CreateAgent(ctx context.Context, spec containerizer.AgentSpec) (string, error)
	ContainerLogs(ctx context.Context, containerID string, tail int) (string, error)
}

// Triggerer requests an early reconciliation cycle.
type Triggerer interface {
	Trigger(source reconciler.CycleSource) bool
}

// Config holds configuration for the Hub.
type Config struct {
	// DefaultImage is used by create_agent when no image is given.
	// Defaults to "hello-world".
	DefaultImage string

	// LogsTail is the get_logs line count when none is given.
	// Defaults to 100.
	LogsTail int

	// SendTimeout bounds a single delivery to one observer.
	// Defaults to 10 seconds.
	SendTimeout time.Duration

	// CommandTimeout bounds the runtime call behind a command.
	// Defaults to 2 minutes, enough for an image pull.
	CommandTimeout time.Duration

	// FanOutLimit caps concurrent sends per broadcast.
	// Defaults to 32.
	FanOutLimit int
}

// Hub tracks observers, broadcasts snapshots and dispatches commands.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer

	config  Config
	repo    agent.Repository
	runtime Commander
	trigger Triggerer
	now     func() time.Time

	snapshots singleflight.Group
}

// New creates a hub. trigger may be nil, in which case commands do not
// request an early cycle.
func New(config Config, repo agent.Repository, runtime Commander, trigger Triggerer) *Hub {
	if config.DefaultImage == "" {
		config.DefaultImage = "hello-world"
	}
	if config.LogsTail <= 0 {
		config.LogsTail = 100
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 2 * time.Minute
	}
	if config.FanOutLimit <= 0 {
		config.FanOutLimit = 32
	}

	return &Hub{
		observers: make(map[string]Observer),
		config:    config,
		repo:      repo,
		runtime:   runtime,
		trigger:   trigger,
		now:       time.Now,
	}
}

// Connect registers an observer. It receives nothing until the next broadcast.
func (h *Hub) Connect(o Observer) {
	h.mu.Lock()
	h.observers[o.ID()] = o
	n := len(h.observers)
	h.mu.Unlock()

	logging.Info("Hub", "Observer %s connected (%d total)", o.ID(), n)
}

// Disconnect deregisters an observer. Unknown observers are ignored.
func (h *Hub) Disconnect(o Observer) {
	h.mu.Lock()
	_, ok := h.observers[o.ID()]
	delete(h.observers, o.ID())
	n := len(h.observers)
	h.mu.Unlock()

	if ok {
		logging.Info("Hub", "Observer %s disconnected (%d total)", o.ID(), n)
	}
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

func (h *Hub) list() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Observer, 0, len(h.observers))
	for _, o := range h.observers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Broadcast serializes msg once and sends it to every observer concurrently.
// Observers whose send fails are deregistered and closed; the others are
// unaffected. It returns the number of observers dropped.
func (h *Hub) Broadcast(ctx context.Context, msg any) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode broadcast: %w", err)
	}

	observers := h.list()
	if len(observers) == 0 {
		return 0, nil
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []Observer
	)
	g.SetLimit(h.config.FanOutLimit)

	for _, o := range observers {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, h.config.SendTimeout)
			defer cancel()

			if err := o.Send(sendCtx, data); err != nil {
				logging.Warn("Hub", "Dropping observer %s: %v", o.ID(), err)
				mu.Lock()
				failed = append(failed, o)
				mu.Unlock()
			}
			// One observer's failure never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range failed {
		h.drop(o)
	}
	return len(failed), nil
}

func (h *Hub) drop(o Observer) {
	h.Disconnect(o)
	if err := o.Close(); err != nil {
		logging.Debug("Hub", "Closing observer %s: %v", o.ID(), err)
	}
}

// Snapshot reads the current world view for request handlers. Concurrent
// callers share one read.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err, _ := h.snapshots.Do("snapshot", func() (any, error) {
		return h.loadSnapshot(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (h *Hub) loadSnapshot(ctx context.Context) (Snapshot, error) {
	active, err := h.repo.List(ctx, true)
	if err != nil {
		return Snapshot{}, err
	}
	garden, err := h.repo.ListInactive(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ActiveAgents: active, MemoryGarden: garden}, nil
}

// Publish broadcasts a full_update built from the repository. It always
// reads afresh so a publish following a commit never reuses an older read.
func (h *Hub) Publish(ctx context.Context) error {
	snapshot, err := h.loadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	_, err = h.Broadcast(ctx, NewFullUpdate(snapshot))
	return err
}

// OnCycle is a reconciler.CycleListener that publishes after every cycle.
func (h *Hub) OnCycle(ctx context.Context, result reconciler.Result) {
	if h.Count() == 0 {
		return
	}
	if err := h.Publish(ctx); err != nil {
		logging.Error("Hub", err, "Failed to publish after %s cycle", result.Source)
	}
}

// CloseAll deregisters and closes every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]Observer)
	h.mu.Unlock()

	for _, o := range observers {
		if err := o.Close(); err != nil {
			logging.Debug("Hub", "Closing observer %s: %v", o.ID(), err)
		}
	}
	if len(observers) > 0 {
		logging.Info("Hub", "Closed %d observers", len(observers))
	}
}

func (h *Hub) requestCycle() {
	if h.trigger != nil {
		h.trigger.Trigger(reconciler.SourceCommand)
	}
}
