package containerizer

import (
	"context"
	"time"
)

// ContainerRuntime defines the operations echopulse needs from a container engine.
type ContainerRuntime interface {
	// ListContainers returns every container known to the engine, running or not.
	// A reachable engine with no containers returns an empty slice and nil.
	// An engine that cannot be queried returns an error wrapping
	// agent.ErrRuntimeUnreachable.
	ListContainers(ctx context.Context) ([]Container, error)

	// StartContainer starts a stopped container
	StartContainer(ctx context.Context, containerID string) error

	// StopContainer stops a running container
	StopContainer(ctx context.Context, containerID string) error

	// RestartContainer restarts a container
	RestartContainer(ctx context.Context, containerID string) error

	// PullImage pulls a container image if not already present
	PullImage(ctx context.Context, image string) error

	// CreateAgent ensures the image is present and starts a detached container
	// labelled as managed by echopulse. It returns the new container id.
	CreateAgent(ctx context.Context, spec AgentSpec) (string, error)

	// ContainerLogs returns the last tail lines of a container's output.
	ContainerLogs(ctx context.Context, containerID string, tail int) (string, error)

	// WatchEvents streams container lifecycle events until ctx is cancelled
	// or the engine stops reporting. The channel is closed on exit.
	WatchEvents(ctx context.Context) (<-chan Event, error)
}

// Container is one entry of the engine's inventory.
type Container struct {
	ID     string
	Name   string
	Status string // engine state: created, running, paused, restarting, exited, dead...
	Labels map[string]string
}

// AgentSpec describes a container to create for a new agent.
type AgentSpec struct {
	Name  string
	Image string
}

// Event is a container lifecycle notification from the engine.
type Event struct {
	Action      string // start, stop, die, create, destroy...
	ContainerID string
	Time        time.Time
}
