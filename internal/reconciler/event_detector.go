package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"echopulse/internal/containerizer"
	"echopulse/pkg/logging"
)

// EventSource streams container lifecycle events.
type EventSource interface {
	WatchEvents(ctx context.Context) (<-chan containerizer.Event, error)
}

// Triggerer accepts requests for an early cycle.
type Triggerer interface {
	Trigger(source CycleSource) bool
}

// EventDetector turns runtime lifecycle events into scheduler triggers.
//
// Events arriving in quick succession (a compose stack coming up, a restart
// emitting stop/die/start) are debounced into a single trigger. When the
// event stream ends, for example because the daemon restarted, the detector
// resubscribes after RetryDelay.
type EventDetector struct {
	mu sync.Mutex

	source EventSource
	target Triggerer

	// debounceInterval is how long to wait for additional events
	debounceInterval time.Duration

	// RetryDelay is the pause before resubscribing to a closed stream.
	RetryDelay time.Duration

	// timer fires the pending trigger
	timer *time.Timer

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewEventDetector creates a detector feeding target from source.
func NewEventDetector(source EventSource, target Triggerer, debounceInterval time.Duration) *EventDetector {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}

	return &EventDetector{
		source:           source,
		target:           target,
		debounceInterval: debounceInterval,
		RetryDelay:       5 * time.Second,
	}
}

// Start subscribes to the event stream. The first subscription failure is
// returned; later ones are logged and retried.
func (d *EventDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := d.source.WatchEvents(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch runtime events: %w", err)
	}

	d.cancelFunc = cancel
	d.running = true

	d.wg.Add(1)
	go d.watchLoop(ctx, events)

	logging.Info("EventDetector", "Started watching runtime events (debounce %v)", d.debounceInterval)
	return nil
}

func (d *EventDetector) watchLoop(ctx context.Context, events <-chan containerizer.Event) {
	defer d.wg.Done()

	for {
		if !d.consume(ctx, events) {
			return
		}
		logging.Warn("EventDetector", "Runtime event stream ended, resubscribing in %v", d.RetryDelay)

		events = d.resubscribe(ctx)
		if events == nil {
			return
		}
	}
}

// consume drains events until the stream closes. It returns false once ctx
// is done.
func (d *EventDetector) consume(ctx context.Context, events <-chan containerizer.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			logging.Debug("EventDetector", "Runtime event %s for %s", ev.Action, logging.ShortID(ev.ContainerID))
			d.debounceEvent()
		}
	}
}

func (d *EventDetector) resubscribe(ctx context.Context) <-chan containerizer.Event {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.RetryDelay):
		}

		events, err := d.source.WatchEvents(ctx)
		if err == nil {
			return events
		}
		logging.Warn("EventDetector", "Failed to resubscribe to runtime events: %v", err)
	}
}

// debounceEvent restarts the pending timer.
func (d *EventDetector) debounceEvent() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounceInterval, func() {
		d.target.Trigger(SourceRuntimeEvent)
	})
}

// Stop cancels the subscription and any pending trigger.
func (d *EventDetector) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	cancel := d.cancelFunc
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	logging.Info("EventDetector", "Stopped watching runtime events")
	return nil
}
