package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/maxlabs/maxagent/internal/logging"
)

// Watcher invalidates cached reads when the project tree changes outside the
// dispatcher (another editor, a build, git). Each change bumps the file's
// version so the next read goes to disk instead of the cache.
type Watcher struct {
	dispatcher *Dispatcher
	root       string
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
}

// NewWatcher creates a watcher that reports changes under root to d.
func NewWatcher(d *Dispatcher, root string) *Watcher {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Watcher{dispatcher: d, root: abs}
}

// Watch starts watching the project tree. It returns once the watch is set
// up; events are handled on a background goroutine until ctx is cancelled or
// Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(ctx)

	if err := w.watchRecursive(w.root); err != nil {
		logging.Errorf("[Watcher] Could not watch %s: %v", w.root, err)
	}
	return nil
}

// Stop ends the watch and releases the OS handles.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

// watchRecursive adds a directory and all non-hidden subdirectories to the
// watcher.
func (w *Watcher) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && skipWatchDir(info.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.Debugf("[Watcher] Could not watch %s: %v", path, err)
		}
		return nil
	})
}

func skipWatchDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "dist", "target":
		return true
	}
	return false
}

// watchLoop handles file system events until the context ends.
func (w *Watcher) watchLoop(ctx context.Context) {
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
			logging.Errorf("[Watcher] Watch error: %v", err)
		}
	}
}

// handleEvent bumps the changed file's version and keeps the watch set in
// step with new directories.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if skipWatchDir(filepath.Base(event.Name)) {
		return
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	w.dispatcher.bumpVersion(filepath.Clean(path))

	// New directories join the watch set.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				logging.Debugf("[Watcher] Could not watch %s: %v", event.Name, err)
			}
		}
	}
}
