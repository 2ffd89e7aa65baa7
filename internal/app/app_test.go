package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echopulse/internal/config"
	"echopulse/internal/containerizer"
)

type stubRuntime struct {
	mu         sync.Mutex
	containers []containerizer.Container
	started    []string
}

func (r *stubRuntime) set(containers ...containerizer.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = containers
}

func (r *stubRuntime) ListContainers(ctx context.Context) ([]containerizer.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]containerizer.Container{}, r.containers...), nil
}

func (r *stubRuntime) StartContainer(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
	return nil
}

func (r *stubRuntime) StopContainer(ctx context.Context, id string) error    { return nil }
func (r *stubRuntime) RestartContainer(ctx context.Context, id string) error { return nil }
func (r *stubRuntime) PullImage(ctx context.Context, image string) error     { return nil }

func (r *stubRuntime) CreateAgent(ctx context.Context, spec containerizer.AgentSpec) (string, error) {
	return "", errors.New("not supported")
}

func (r *stubRuntime) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	return "", nil
}

func (r *stubRuntime) WatchEvents(ctx context.Context) (<-chan containerizer.Event, error) {
	ch := make(chan containerizer.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func withStubRuntime(t *testing.T, rt *stubRuntime) {
	t.Helper()
	orig := newContainerRuntime
	newContainerRuntime = func(config.RuntimeConfig) (containerizer.ContainerRuntime, error) { return rt, nil }
	t.Cleanup(func() { newContainerRuntime = orig })
}

func testSettings() *config.Config {
	s := config.Default()
	s.Storage.Driver = "memory"
	s.Server.Host = "127.0.0.1"
	s.Server.Port = 1
	s.Reconcile.Interval = 50 * time.Millisecond
	return &s
}

func TestNewApplication_AppliesOverrides(t *testing.T) {
	withStubRuntime(t, &stubRuntime{})

	cfg := &Config{
		Silent:   true,
		Settings: testSettings(),
		Overrides: Overrides{
			Addr:     "127.0.0.1:0",
			Interval: time.Second,
		},
	}
	application, err := NewApplication(cfg)
	require.NoError(t, err)
	defer application.services.Repository.Close()

	assert.Equal(t, 0, cfg.Settings.Server.Port)
	assert.Equal(t, time.Second, application.services.Scheduler.Status().Interval)
	assert.NotNil(t, application.services.Detector)
	assert.Nil(t, application.services.Watcher, "no config path, nothing to watch")
}

func TestNewApplication_InvalidConfiguration(t *testing.T) {
	withStubRuntime(t, &stubRuntime{})

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "bad store flag", cfg: &Config{Silent: true, Settings: testSettings(), Overrides: Overrides{Store: "redis"}}},
		{name: "bad addr flag", cfg: &Config{Silent: true, Settings: testSettings(), Overrides: Overrides{Addr: "nope"}}},
		{name: "negative interval", cfg: &Config{Silent: true, Settings: testSettings(), Overrides: Overrides{Interval: -time.Second}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewApplication(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewApplication_RuntimeFailureClosesStorage(t *testing.T) {
	orig := newContainerRuntime
	newContainerRuntime = func(config.RuntimeConfig) (containerizer.ContainerRuntime, error) {
		return nil, errors.New("docker command not found in PATH")
	}
	t.Cleanup(func() { newContainerRuntime = orig })

	_, err := NewApplication(&Config{Silent: true, Settings: testSettings()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container runtime")
}

func TestApplication_RunMirrorsAndShutsDown(t *testing.T) {
	rt := &stubRuntime{}
	rt.set(containerizer.Container{ID: "abc123", Name: "echo-1", Status: "running"})
	withStubRuntime(t, rt)

	settings := testSettings()
	settings.Server.Port = 0
	application, err := NewApplication(&Config{Silent: true, Settings: settings})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	services := application.services
	require.Eventually(t, func() bool {
		active, err := services.Repository.List(context.Background(), true)
		return err == nil && len(active) == 1
	}, 2*time.Second, 10*time.Millisecond)

	addr := services.Server.Addr()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The container vanishes; the next periodic cycle broadcasts its retirement.
	rt.set()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg struct {
			Type    string `json:"type"`
			Payload struct {
				Active []map[string]any `json:"active_agents"`
				Garden []map[string]any `json:"memory_garden"`
			} `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "full_update" && len(msg.Payload.Garden) == 1 {
			assert.Empty(t, msg.Payload.Active)
			assert.Equal(t, "abc123", msg.Payload.Garden[0]["id"])
			break
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err, "server is closed after shutdown")
}

func TestServices_ApplyReload(t *testing.T) {
	withStubRuntime(t, &stubRuntime{})

	dir := t.TempDir()
	path := filepath.Join(dir, "echopulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\nserver:\n  host: 127.0.0.1\n  port: 0\n"), 0644))

	settings := testSettings()
	settings.Server.Port = 0
	application, err := NewApplication(&Config{Silent: true, ConfigPath: path, Settings: settings})
	require.NoError(t, err)
	services := application.services
	require.NotNil(t, services.Watcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, services.Start(ctx))
	defer services.Stop(context.Background())

	next := *settings
	next.Reconcile.Interval = 2 * time.Second
	services.applyReload(next)
	assert.Equal(t, 2*time.Second, services.Scheduler.Status().Interval)

	next.Reconcile.Interval = 0
	services.applyReload(next)
	assert.Equal(t, 2*time.Second, services.Scheduler.Status().Interval, "invalid interval is ignored")
}
