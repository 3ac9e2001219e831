// Package watch notices project directories disappearing from the projects
// root.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/logging"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("watcher closed")

// Watcher calls OnRemove with a project name whenever a direct child of the
// projects root is removed or renamed away.
type Watcher struct {
	root     string
	onRemove func(name string)
	log      *slog.Logger

	mu sync.Mutex
	// +checklocks:mu
	fsw *fsnotify.Watcher
	// +checklocks:mu
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for root. onRemove runs on the watcher goroutine.
func New(root string, onRemove func(name string)) *Watcher {
	return &Watcher{
		root:     filepath.Clean(root),
		onRemove: onRemove,
		log:      slog.With("component", "watch"),
		done:     make(chan struct{}),
	}
}

// Start begins watching. The root must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.fsw != nil {
		return nil
	}

	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch projects dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch projects dir: %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop(fsw)

	w.log.Info("watching projects dir", "root", w.root)
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer logging.LogPanic("watch-loop", nil)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if filepath.Dir(filepath.Clean(ev.Name)) != w.root {
		return
	}
	name := filepath.Base(ev.Name)
	if config.ValidateProjectName(name) != nil {
		return
	}

	w.log.Debug("project dir gone", "project", name, "op", ev.Op.String())
	if w.onRemove != nil {
		w.onRemove(name)
	}
}

// Close stops the watcher and waits for its goroutine. Safe to call more
// than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	fsw := w.fsw
	w.mu.Unlock()

	close(w.done)
	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.wg.Wait()
	return err
}
