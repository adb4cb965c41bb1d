package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of filesystem events into one trigger.
const DefaultDebounce = 2 * time.Second

// Watcher fires a callback when a new activity snapshot lands in the
// archive directory, so a snapshot synced in from another machine is
// picked up immediately instead of on the next scheduled run. Only
// files shaped like archived snapshots count; everything else in the
// directory is ignored.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  func()
	logger   *slog.Logger

	fsw *fsnotify.Watcher
	wg  sync.WaitGroup

	mu            sync.Mutex
	timer         *time.Timer
	suppressUntil time.Time
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the snapshot directory to watch. It must exist before
	// Start is called.
	Dir string

	// Debounce is how long the watcher waits after the last event
	// before triggering. DefaultDebounce when zero.
	Debounce time.Duration

	// Logger receives structured logs, slog.Default() when nil.
	Logger *slog.Logger
}

// NewWatcher creates a watcher that invokes trigger once per debounced
// burst of snapshot writes under cfg.Dir.
func NewWatcher(cfg WatcherConfig, trigger func()) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watcher: dir is required")
	}
	if trigger == nil {
		return nil, errors.New("watcher: trigger is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Watcher{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		trigger:  trigger,
		logger:   cfg.Logger,
	}, nil
}

// Start begins watching the directory.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	w.logger.Info("watching for snapshots",
		"dir", w.dir,
		"debounce", w.debounce.String(),
	)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit. A pending
// debounce timer is cancelled.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Suppress ignores snapshot events until d from now has passed. The
// daemon calls this when a tracking cycle completes, so the snapshot
// that cycle just archived does not trigger another one.
func (w *Watcher) Suppress(d time.Duration) {
	w.mu.Lock()
	w.suppressUntil = time.Now().Add(d)
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle debounces create and write events for snapshot files.
func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	base := filepath.Base(event.Name)
	if !strings.HasPrefix(base, "activity_") || !strings.HasSuffix(base, ".json") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Now().Before(w.suppressUntil) {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	suppressed := time.Now().Before(w.suppressUntil)
	w.mu.Unlock()
	if suppressed {
		return
	}

	w.logger.Info("snapshot change detected")
	w.trigger()
}
