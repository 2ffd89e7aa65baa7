// Package app bootstraps and runs the echopulse server.
//
// NewApplication loads configuration (file, environment, flags), initializes
// logging and wires the services:
//
//	repository  <- reconciler <- scheduler <- event detector
//	     ^                           |
//	     |                           v (after every cycle)
//	    hub  <---------------------- +
//	     |
//	  server (WebSocket /ws, /healthz, /api/*)
//
// Run starts them, waits for SIGINT or SIGTERM and shuts down in order:
// config watcher, scheduler (waiting for any in-flight cycle), event
// detector, observers, HTTP server, storage.
package app
