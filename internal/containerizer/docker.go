package containerizer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"echopulse/internal/agent"
	"echopulse/pkg/logging"
)

const dockerSubsystem = "Docker"

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// DockerOptions configures the Docker CLI runtime.
type DockerOptions struct {
	// Binary is the docker executable, "docker" by default.
	Binary string

	// ManagedLabel is applied to containers created through CreateAgent,
	// in key=value form.
	ManagedLabel string

	// LabelFilter restricts ListContainers to containers carrying this
	// key=value label. Empty lists every container.
	LabelFilter string
}

// DockerRuntime implements ContainerRuntime using the Docker CLI
type DockerRuntime struct {
	binary       string
	managedLabel string
	labelFilter  string
}

// NewDockerRuntime creates a new Docker runtime instance. A daemon that is
// not reachable yet is only logged; reconciliation treats it as transient.
func NewDockerRuntime(opts DockerOptions) (*DockerRuntime, error) {
	d := newDockerRuntime(opts)

	if _, err := exec.LookPath(d.binary); err != nil {
		return nil, fmt.Errorf("%s command not found in PATH: %w", d.binary, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := execCommandContext(ctx, d.binary, "info").Run(); err != nil {
		logging.Warn(dockerSubsystem, "Docker daemon not accessible yet: %v", err)
	}

	return d, nil
}

func newDockerRuntime(opts DockerOptions) *DockerRuntime {
	binary := opts.Binary
	if binary == "" {
		binary = "docker"
	}
	return &DockerRuntime{
		binary:       binary,
		managedLabel: opts.ManagedLabel,
		labelFilter:  opts.LabelFilter,
	}
}

// psEntry is one line of `docker ps --format {{json .}}`.
type psEntry struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	State  string `json:"State"`
	Labels string `json:"Labels"`
}

// ListContainers lists all containers, including stopped ones.
func (d *DockerRuntime) ListContainers(ctx context.Context) ([]Container, error) {
	args := []string{"ps", "-a", "--no-trunc", "--format", "{{json .}}"}
	if d.labelFilter != "" {
		args = append(args, "--filter", "label="+d.labelFilter)
	}

	var stderr bytes.Buffer
	cmd := execCommandContext(ctx, d.binary, args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: docker ps: %v: %s", agent.ErrRuntimeUnreachable, err, strings.TrimSpace(stderr.String()))
	}

	containers, err := parsePSOutput(output)
	if err != nil {
		// Garbled output is not a trustworthy inventory.
		return nil, fmt.Errorf("%w: %v", agent.ErrRuntimeUnreachable, err)
	}
	logging.Debug(dockerSubsystem, "Listed %d containers", len(containers))
	return containers, nil
}

func parsePSOutput(output []byte) ([]Container, error) {
	containers := make([]Container, 0)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry psEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse docker ps line %q: %w", line, err)
		}
		containers = append(containers, Container{
			ID:     entry.ID,
			Name:   firstName(entry.Names),
			Status: entry.State,
			Labels: parseLabels(entry.Labels),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read docker ps output: %w", err)
	}
	return containers, nil
}

func firstName(names string) string {
	name, _, _ := strings.Cut(names, ",")
	return strings.TrimPrefix(strings.TrimSpace(name), "/")
}

func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	if s == "" {
		return labels
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, _ := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); k != "" {
			labels[k] = v
		}
	}
	return labels
}

// StartContainer starts a stopped container
func (d *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	return d.control(ctx, "start", containerID)
}

// StopContainer stops a running container
func (d *DockerRuntime) StopContainer(ctx context.Context, containerID string) error {
	return d.control(ctx, "stop", containerID)
}

// RestartContainer restarts a container
func (d *DockerRuntime) RestartContainer(ctx context.Context, containerID string) error {
	return d.control(ctx, "restart", containerID)
}

func (d *DockerRuntime) control(ctx context.Context, action, containerID string) error {
	shortID := logging.ShortID(containerID)
	logging.Info(dockerSubsystem, "Running %s on container %s", action, shortID)

	output, err := execCommandContext(ctx, d.binary, action, containerID).CombinedOutput()
	if err != nil {
		return agent.NewOperationError(action, containerID, commandError(err, output))
	}
	return nil
}

// PullImage pulls a container image if not already present
func (d *DockerRuntime) PullImage(ctx context.Context, image string) error {
	checkCmd := execCommandContext(ctx, d.binary, "image", "inspect", image)
	if err := checkCmd.Run(); err == nil {
		logging.Debug(dockerSubsystem, "Image %s already exists", image)
		return nil
	}

	logging.Info(dockerSubsystem, "Image %s not found locally, pulling", image)
	output, err := execCommandContext(ctx, d.binary, "pull", image).CombinedOutput()
	if err != nil {
		return agent.NewOperationError("pull", "", fmt.Errorf("image %s: %w", image, commandError(err, output)))
	}
	logging.Info(dockerSubsystem, "Pulled image %s", image)
	return nil
}

// CreateAgent pulls the image when needed and runs a detached, labelled container.
func (d *DockerRuntime) CreateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	if spec.Name == "" {
		return "", agent.NewOperationError("create", "", fmt.Errorf("agent name is required"))
	}
	if spec.Image == "" {
		return "", agent.NewOperationError("create", "", fmt.Errorf("image is required"))
	}

	if err := d.PullImage(ctx, spec.Image); err != nil {
		return "", err
	}

	args := []string{"run", "-d", "--name", spec.Name}
	if d.managedLabel != "" {
		args = append(args, "--label", d.managedLabel)
	}
	args = append(args, spec.Image)

	logging.Debug(dockerSubsystem, "Starting container with command: %s %s", d.binary, strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := execCommandContext(ctx, d.binary, args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", agent.NewOperationError("create", "", commandError(err, stderr.Bytes()))
	}

	containerID := strings.TrimSpace(string(output))
	if containerID == "" {
		return "", agent.NewOperationError("create", "", fmt.Errorf("docker run returned no container id"))
	}
	logging.Info(dockerSubsystem, "Started container %s with ID %s", spec.Name, logging.ShortID(containerID))
	return containerID, nil
}

// ContainerLogs returns the last tail lines of stdout and stderr.
func (d *DockerRuntime) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, containerID)

	output, err := execCommandContext(ctx, d.binary, args...).CombinedOutput()
	if err != nil {
		return "", agent.NewOperationError("logs", containerID, commandError(err, output))
	}
	return string(output), nil
}

// eventEntry is one line of `docker events --format {{json .}}`.
type eventEntry struct {
	Action string `json:"Action"`
	Status string `json:"status"`
	ID     string `json:"id"`
	Actor  struct {
		ID string `json:"ID"`
	} `json:"Actor"`
	TimeNano int64 `json:"timeNano"`
}

func (e eventEntry) toEvent() Event {
	action := e.Action
	if action == "" {
		action = e.Status
	}
	id := e.Actor.ID
	if id == "" {
		id = e.ID
	}
	ev := Event{Action: action, ContainerID: id}
	if e.TimeNano > 0 {
		ev.Time = time.Unix(0, e.TimeNano).UTC()
	}
	return ev
}

// WatchEvents follows `docker events` for containers.
func (d *DockerRuntime) WatchEvents(ctx context.Context) (<-chan Event, error) {
	cmd := execCommandContext(ctx, d.binary, "events", "--format", "{{json .}}", "--filter", "type=container")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start events command: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() { _ = cmd.Wait() }()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			var entry eventEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				logging.Debug(dockerSubsystem, "Skipping unparsable event: %v", err)
				continue
			}
			select {
			case events <- entry.toEvent():
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func commandError(err error, output []byte) error {
	msg := strings.TrimSpace(string(output))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
