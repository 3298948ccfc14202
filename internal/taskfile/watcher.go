package taskfile

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadFunc is called with the path of the changed task file.
type ReloadFunc func(ctx context.Context, path string) error

// Watcher reloads a task file when it changes on disk.
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	pending chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits after the last change before
// reloading. Editors often write a file in several steps.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher watches the directory holding path, so the file may be
// replaced by rename as well as written in place.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		reload:   reload,
		debounce: 200 * time.Millisecond,
		watcher:  fsWatcher,
		pending:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is canceled. Reloads run on this
// goroutine, one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Task file watcher error")
		case <-w.pending:
			log.Info().Str("path", w.path).Msg("Task file changed, reloading")
			if err := w.reload(ctx, w.path); err != nil {
				log.Error().Err(err).Str("path", w.path).Msg("Failed to reload task file")
			}
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.path {
		return
	}
	// Remove and rename leave nothing to load; a following create fires.
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.pending <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
