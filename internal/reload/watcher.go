// Package reload provides configuration hot-reload via file watching and
// signal handling.
package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultDebounce     = 200 * time.Millisecond
)

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes when fsnotify is
	// unavailable. Defaults to 5 seconds if zero.
	PollInterval time.Duration

	// Debounce coalesces bursts of writes (editors often write, rename and
	// chmod in quick succession). Defaults to 200ms if zero.
	Debounce time.Duration

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	Logger *slog.Logger
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

func (c WatcherConfig) debounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return defaultDebounce
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file was modified.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher reports modifications of a configuration file. It watches the
// parent directory with fsnotify so atomic replace-by-rename is seen, and
// falls back to polling the modification time.
type Watcher struct {
	cfg     WatcherConfig
	logger  *slog.Logger
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	polling   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins watching the config file. Only the first call starts the
// goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)

		if !w.cfg.ForcePolling {
			fw, err := w.newNotifier()
			if err == nil {
				go w.watch(ctx, fw)
				return
			}
			w.logger.Warn("reload: fsnotify unavailable, polling config file",
				"path", w.cfg.ConfigPath, "error", err)
		}
		w.polling.Store(true)
		go w.poll(ctx)
	})
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns the channel of file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) newNotifier() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.cfg.ConfigPath)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}

func (w *Watcher) watch(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.stopped)
	defer fw.Close()

	target := filepath.Clean(w.cfg.ConfigPath)
	// Armed by the first matching event.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce.Reset(w.cfg.debounceOrDefault())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("reload: watcher error", "error", err)
		case <-debounce.C:
			if w.statModTime().IsZero() {
				continue
			}
			w.emit()
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	lastMod := w.statModTime()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.statModTime()
			if current.IsZero() {
				continue
			}
			if current.After(lastMod) {
				lastMod = current
				w.emit()
			}
		}
	}
}

func (w *Watcher) emit() {
	select {
	case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
	default:
		// A pending event already covers this change.
	}
}

func (w *Watcher) statModTime() time.Time {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
