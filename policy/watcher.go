package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the policy store when files in the policy directory change.
// Reloads only replace the store contents; in-flight cycle snapshots are
// unaffected, so a cycle always runs against a single consistent policy set.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher over the store's policy directory.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		watcher:  fsw,
		logger:   logger,
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching. It returns after the watch is registered; reload
// processing runs until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.store.dir); err != nil {
		return err
	}

	go w.run(ctx)

	w.logger.Info("Policy watcher started", "dir", w.store.dir)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Policy watcher error", "error", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent marks a reload pending if the change touches a policy file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	ext := filepath.Ext(event.Name)
	if ext != ".yaml" && ext != ".yml" {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("Policy change detected",
		"path", event.Name,
		"op", event.Op.String())
}

// flush performs at most one reload for all changes seen in the last window.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !pending {
		return
	}

	if err := w.store.Load(); err != nil {
		// Keep serving the previous policies.
		w.logger.Error("Policy reload failed, keeping previous set", "error", err)
	}
}
