package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports edits to a single file. The parent directory is watched so
// that atomic replace-by-rename is seen as well as in-place writes. Bursts of
// events are collapsed into one callback.
type Watcher struct {
	path     string
	onChange func(context.Context)
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, onChange func(context.Context), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// SetDebounce overrides the quiet period before the callback fires.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx, fw, w.debounce, w.stopCh, w.doneCh)

	w.logger.Debug("watching file", zap.String("path", w.path))
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh, fw := w.stopCh, w.doneCh, w.watcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		w.logger.Warn("closing file watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, debounce time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-timer.C:
			w.onChange(ctx)
		}
	}
}
