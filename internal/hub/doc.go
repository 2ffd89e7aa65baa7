// Package hub fans reconciled state out to connected observers and executes
// the commands they send back.
//
// The Hub owns the observer registry. After every reconciliation cycle the
// scheduler calls OnCycle, which reads the repository once and broadcasts a
// full_update to all observers concurrently. An observer whose send fails is
// dropped without affecting the rest.
//
// Commands (start, stop, restart, create_agent, retire_agent, get_logs) are
// answered only to the observer that sent them. Mutating commands request an
// early cycle instead of writing runtime state themselves; retire_agent is
// the one command that writes to the repository directly.
//
// Server exposes the hub over WebSocket (gorilla/websocket) together with a
// small read-only HTTP API:
//
//	GET /ws           observer connection
//	GET /healthz      liveness and observer count
//	GET /api/agents   the current full_update
//	GET /api/zones    zone catalogue
//	GET /api/metrics  scheduler status and cycle metrics
package hub
