// Package watch provides a small debounced file-change notifier used to
// live-reload a project's ignore file and the global YAML config file
// without restarting the supervisor.
package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a fixed set of files and invokes a callback, debounced,
// after any of them changes. Watching a path that does not yet exist is
// not an error: the directory containing it is watched instead, and
// create/write events for the target name are forwarded once it appears.
type Watcher struct {
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	names  map[string]bool // basenames of interest, for filtering directory events

	stop chan struct{}
	wg   sync.WaitGroup
}

// New starts watching paths (files or their parent directories) and calls
// onChange, debounced by delay, whenever one of them is created or
// written. Close stops the watcher and releases its file descriptor.
func New(paths []string, delay time.Duration, logger *slog.Logger, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		logger: logger,
		fsw:    fsw,
		names:  make(map[string]bool, len(paths)),
		stop:   make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Dir(p)
		dirs[dir] = true
		w.names[filepath.Base(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("watch: cannot watch directory", "dir", dir, "error", err)
		}
	}

	w.wg.Add(1)
	go w.run(delay, onChange)

	return w, nil
}

func (w *Watcher) run(delay time.Duration, onChange func()) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.names[filepath.Base(ev.Name)] {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(delay)
				timerC = timer.C
			} else {
				timer.Reset(delay)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: fsnotify error", "error", err)

		case <-timerC:
			onChange()
			timerC = nil
		}
	}
}

// Close stops the watch loop and releases the underlying inotify/kqueue
// handle. Safe to call once.
func (w *Watcher) Close() {
	close(w.stop)
	_ = w.fsw.Close()
	w.wg.Wait()
}
