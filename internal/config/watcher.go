package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"echopulse/pkg/logging"
)

// DefaultReloadDebounce is the quiet period after the last write before the
// file is reloaded. Editors often write a file in several steps.
const DefaultReloadDebounce = 300 * time.Millisecond

// WatcherConfig holds configuration for the config file watcher.
type WatcherConfig struct {
	// Path is the configuration file to watch.
	Path string

	// Debounce defaults to DefaultReloadDebounce.
	Debounce time.Duration

	// OnChange receives every successfully loaded and validated configuration.
	OnChange func(Config)
}

// Watcher reloads the configuration file when it changes. Invalid edits are
// logged and ignored so the running configuration stays in effect.
type Watcher struct {
	mu sync.Mutex

	config    WatcherConfig
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	running   bool

	debounceTimer *time.Timer
}

// NewWatcher creates a watcher. Call Start to begin watching.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Path == "" {
		config.Path = DefaultConfigFile
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultReloadDebounce
	}
	return &Watcher{config: config}
}

// Start watches the directory holding the file, so that files replaced by
// rename (as most editors save) are still seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.config.Path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return err
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.processEvents(fsWatcher.Events, fsWatcher.Errors)

	logging.Info("ConfigWatcher", "Watching %s for changes", w.config.Path)
	return nil
}

// processEvents takes the channels as parameters so Stop can nil the watcher.
func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	defer close(w.done)
	target := filepath.Clean(w.config.Path)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logging.Debug("ConfigWatcher", "Config file event: %s", event)
			w.reloadDebounced()

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) reloadDebounced() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	callback := w.config.OnChange
	w.mu.Unlock()
	if !running {
		return
	}

	config, err := LoadValidated(w.config.Path)
	if err != nil {
		logging.Warn("ConfigWatcher", "Keeping current configuration, reload failed: %v", err)
		return
	}
	logging.Info("ConfigWatcher", "Reloaded %s", w.config.Path)
	if callback != nil {
		callback(config)
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	fsWatcher := w.fsWatcher
	w.fsWatcher = nil
	done := w.done
	w.mu.Unlock()

	<-done
	if err := fsWatcher.Close(); err != nil {
		logging.Warn("ConfigWatcher", "Error closing fsnotify watcher: %v", err)
	}
}
