// Package config loads the echopulse configuration.
//
// Configuration is layered: built-in defaults, then echopulse.yaml, then
// the environment (a .env file next to the YAML file is loaded first), then
// command line flags applied by the caller. A missing file is not an error.
//
//	server:
//	  host: 0.0.0.0
//	  port: 8502
//	  path: /ws
//	  allowed_origins: ["http://localhost:5173"]
//	reconcile:
//	  interval: 5s
//	  timeout: 30s
//	  watch_events: true
//	  debounce: 500ms
//	runtime:
//	  type: docker
//	  default_image: hello-world
//	  managed_label: source=echosim
//	  logs_tail: 100
//	storage:
//	  driver: sqlite            # sqlite, mongo or memory
//	  sqlite_path: simverse.db
//	log:
//	  level: info
//	  format: text
//
// The environment variables ECHOPULSE_STORE, ECHOPULSE_SQLITE_PATH,
// MONGODB_URI, ECHOPULSE_ADDR and ALLOWED_ORIGINS override the file.
//
// Watcher reloads the file on change. Only reconcile.interval is applied to a
// running process; other sections need a restart.
package config
