package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echopulse/internal/reconciler"
)

type fakeStatus struct{}

func (fakeStatus) Status() reconciler.Status {
	return reconciler.Status{State: reconciler.StateSynced, Interval: 5 * time.Second, Running: true}
}

func (fakeStatus) Metrics() *reconciler.ReconcilerMetrics { return reconciler.NewReconcilerMetrics() }

func newTestServer(t *testing.T, f *hubFixture, cfg ServerConfig) (*httptest.Server, string) {
	t.Helper()
	srv := NewServer(cfg, f.hub, fakeStatus{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.hub.CloseAll()
		ts.Close()
	})
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForObservers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_WebSocketRoundTrip(t *testing.T) {
	f := newFixture(t)
	seed(t, f.repo, "abc123", "running", true)
	_, url := newTestServer(t, f, ServerConfig{})

	conn := dial(t, url, nil)
	waitForObservers(t, f.hub, 1)

	require.NoError(t, f.hub.Publish(context.Background()))
	update := readJSON(t, conn)
	assert.Equal(t, "full_update", update["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_logs","container_id":"abc123"}`)))
	logs := readJSON(t, conn)
	assert.Equal(t, "logs", logs["type"])
	assert.Equal(t, true, logs["success"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	errMsg := readJSON(t, conn)
	assert.Equal(t, "error", errMsg["type"])

	// Still connected after a bad command.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"restart","container_id":"abc123"}`)))
	receipt := readJSON(t, conn)
	assert.Equal(t, "command_receipt", receipt["type"])
	assert.Equal(t, 1, f.hub.Count())
}

func TestServer_DisconnectDeregisters(t *testing.T) {
	f := newFixture(t)
	_, url := newTestServer(t, f, ServerConfig{})

	conn := dial(t, url, nil)
	waitForObservers(t, f.hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	waitForObservers(t, f.hub, 0)
}

func TestServer_CloseAllSendsCloseFrame(t *testing.T) {
	f := newFixture(t)
	_, url := newTestServer(t, f, ServerConfig{})

	conn := dial(t, url, nil)
	waitForObservers(t, f.hub, 1)

	f.hub.CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_OriginCheck(t *testing.T) {
	f := newFixture(t)
	_, url := newTestServer(t, f, ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dial(t, url, http.Header{"Origin": []string{"http://localhost:5173"}})
	waitForObservers(t, f.hub, 1)
}

func TestServer_HTTPEndpoints(t *testing.T) {
	f := newFixture(t)
	seed(t, f.repo, "abc123", "paused", true)
	seed(t, f.repo, "def456", "exited", false)
	ts, _ := newTestServer(t, f, ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}})

	get := func(path string) (*http.Response, map[string]any) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && path != "/api/zones" {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		}
		return resp, body
	}

	resp, health := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "Synced", health["reconcile_state"])

	resp, agents := get("/api/agents")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	payload := agents["payload"].(map[string]any)
	assert.Len(t, payload["active_agents"], 1)
	assert.Len(t, payload["memory_garden"], 1)

	resp, metrics := get("/api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, metrics, "metrics")
	assert.Contains(t, metrics, "status")

	zonesResp, err := http.Get(ts.URL + "/api/zones")
	require.NoError(t, err)
	defer zonesResp.Body.Close()
	var zones []map[string]any
	require.NoError(t, json.NewDecoder(zonesResp.Body).Decode(&zones))
	assert.Len(t, zones, 5)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
	assert.Equal(t, "http://localhost:5173", preflight.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_StartAndShutdown(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, f.hub, nil)
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForObservers(t, f.hub, 1)

	f.hub.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	resp, err = http.Get("http://" + srv.Addr() + "/api/metrics")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected server to refuse connections after shutdown")
	}
}
