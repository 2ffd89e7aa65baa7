package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"echopulse/internal/reconciler"
	"echopulse/internal/zones"
	"echopulse/pkg/logging"
)

// StatusProvider exposes the scheduler's state to the HTTP endpoints.
type StatusProvider interface {
	Status() reconciler.Status
	Metrics() *reconciler.ReconcilerMetrics
}

// ServerConfig holds configuration for the HTTP and WebSocket server.
type ServerConfig struct {
	// Addr is the listen address, e.g. "0.0.0.0:8502".
	Addr string

	// Path is the WebSocket endpoint. Defaults to "/ws".
	Path string

	// AllowedOrigins lists the origins accepted for CORS and WebSocket
	// upgrades. Empty or "*" accepts any origin.
	AllowedOrigins []string

	// ReadLimit caps inbound message size. Defaults to 64KiB.
	ReadLimit int64

	// WriteWait bounds every write. Defaults to 10 seconds.
	WriteWait time.Duration

	// PongWait is how long a silent connection survives. Pings are sent at
	// 9/10 of it. Defaults to 60 seconds.
	PongWait time.Duration
}

// Server serves the observer WebSocket and the read-only HTTP API.
type Server struct {
	hub    *Hub
	status StatusProvider
	config ServerConfig

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	// conns tracks connection goroutines for shutdown.
	conns sync.WaitGroup
}

// NewServer creates a server. status may be nil.
func NewServer(config ServerConfig, hub *Hub, status StatusProvider) *Server {
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 64 * 1024
	}
	if config.WriteWait <= 0 {
		config.WriteWait = 10 * time.Second
	}
	if config.PongWait <= 0 {
		config.PongWait = 60 * time.Second
	}

	s := &Server{hub: hub, status: status, config: config}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.config.Path, s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/zones", s.handleZones)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	return s.enableCORS(mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server", err, "HTTP server stopped unexpectedly")
		}
	}()

	logging.Info("Server", "Listening on ws://%s%s", listener.Addr(), s.config.Path)
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for connection goroutines.
// Observers must already be closed through the hub for this to return
// promptly.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug("Server", "WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	o := newWSObserver(uuid.NewString(), conn, s.config.WriteWait)
	s.hub.Connect(o)
	defer func() {
		s.hub.Disconnect(o)
		_ = o.Close()
	}()

	conn.SetReadLimit(s.config.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(o, stopPing)

	ctx := context.WithoutCancel(r.Context())
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Server", "Observer %s read error: %v", o.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.hub.HandleCommand(ctx, o, data)
	}
}

func (s *Server) pingLoop(o *wsObserver, stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := o.ping(); err != nil {
				logging.Debug("Server", "Ping to %s failed: %v", o.ID(), err)
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"observers": s.hub.Count(),
	}
	if s.status != nil {
		body["reconcile_state"] = s.status.Status().State
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	snapshot, err := s.hub.Snapshot(ctx)
	if err != nil {
		logging.Error("Server", err, "Failed to load agents")
		http.Error(w, "Failed to load agents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, NewFullUpdate(snapshot))
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, zones.Catalogue())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "Reconciliation not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    s.status.Status(),
		"metrics":   s.status.Metrics().GetSummary(),
		"observers": s.hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write response: %v", err)
	}
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.config.AllowedOrigins, "*") || slices.Contains(s.config.AllowedOrigins, origin)
}

// enableCORS adds CORS headers for allowed origins and answers preflights.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
