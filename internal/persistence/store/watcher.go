package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/mapcore/internal/logging"
)

// DefaultWatchDebounce coalesces the bursts of events editors produce for a
// single save.
const DefaultWatchDebounce = 50 * time.Millisecond

// ChangeFunc receives the document of a snapshot file that was written.
type ChangeFunc func(ctx context.Context, path string, doc map[string]any)

// ErrorFunc receives watcher and decode errors.
type ErrorFunc func(path string, err error)

// Watcher reports snapshot files that are created or rewritten in a
// directory, or a single file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   string
	file     string
	debounce time.Duration
	onChange ChangeFunc
	onError  ErrorFunc
	logger   *logging.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler sets the error callback.
func WithErrorHandler(fn ErrorFunc) WatchOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *Watcher) { w.logger = logging.OrNop(l).WithComponent("snapshot-watcher") }
}

// NewWatcher watches target, a directory or a snapshot file. When target is
// a file its parent directory is watched so that atomic renames are seen.
func NewWatcher(target string, onChange ChangeFunc, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		target:   target,
		debounce: DefaultWatchDebounce,
		onChange: onChange,
		logger:   logging.NopLogger().WithComponent("snapshot-watcher"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		w.file = filepath.Clean(target)
		dir = filepath.Dir(target)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins processing events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		go w.loop(ctx)
	}
}

// Stop stops the watcher and waits for the event loop to exit. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(0)
	<-timer.C

	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			w.stopOnce.Do(func() { _ = w.watcher.Close() })
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			paths := pending
			pending = make(map[string]struct{})
			for path := range paths {
				w.handle(ctx, path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "target", w.target, "error", err)
			if w.onError != nil {
				w.onError(w.target, err)
			}
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	if w.file != "" {
		return filepath.Clean(name) == w.file
	}
	return IsSnapshotFile(name)
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Renamed away or deleted before the debounce fired.
		return
	}
	doc, err := ReadFile(path)
	if err != nil {
		w.logger.Warn("snapshot file unreadable", "path", path, "error", err)
		if w.onError != nil {
			w.onError(path, err)
		}
		return
	}
	w.logger.Debug("snapshot file changed", "path", path)
	if w.onChange != nil {
		w.onChange(ctx, path, doc)
	}
}
