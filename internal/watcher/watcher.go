// Package watcher monitors local workspace directories and reports changes per workspace.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/ingest"
	"github.com/CageChen/fxv/internal/logging"
)

// EventType represents the type of file system event
type EventType int

// File system event types.
const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "update"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Event represents a change inside a workspace. Path is relative to the workspace
// directory and '/'-separated.
type Event struct {
	Type      EventType
	Workspace string
	Path      string
}

// Callback is a function called when file changes occur
type Callback func(Event)

// Target is a workspace directory to watch.
type Target struct {
	Workspace string
	Dir       string
	Exclude   []string
}

// Watcher monitors file system changes in workspace directories
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu        sync.RWMutex
	targets   map[string]Target
	callbacks []Callback
	done      chan struct{}
}

// New creates a new file system watcher
func New(logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher: w,
		logger:  logging.OrNop(logger),
		targets: make(map[string]Target),
		done:    make(chan struct{}),
	}, nil
}

// OnChange registers a callback for file change events
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Add watches every non-excluded directory below t.Dir.
func (w *Watcher) Add(t Target) error {
	dir, err := filepath.Abs(t.Dir)
	if err != nil {
		return err
	}
	t.Dir = dir

	w.mu.Lock()
	w.targets[t.Workspace] = t
	w.mu.Unlock()

	return w.addTree(t, dir)
}

func (w *Watcher) addTree(t Target, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := relative(t.Dir, p); rel != "" && ingest.Excluded(rel, t.Exclude) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("path", p), zap.Error(err))
		}
		return nil
	})
}

// Remove stops watching the workspace's directories.
func (w *Watcher) Remove(workspace string) {
	w.mu.Lock()
	t, ok := w.targets[workspace]
	delete(w.targets, workspace)
	w.mu.Unlock()
	if !ok {
		return
	}

	for _, p := range w.watcher.WatchList() {
		if p == t.Dir || strings.HasPrefix(p, t.Dir+string(filepath.Separator)) {
			_ = w.watcher.Remove(p)
		}
	}
}

// Start begins delivering events.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
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
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	t, rel, ok := w.target(event.Name)
	if !ok || rel == "" || ingest.Excluded(rel, t.Exclude) {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventCreate
		// If a new directory is created, watch it
		if isDir(event.Name) {
			if err := w.addTree(t, event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventWrite
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventRename
	default:
		return
	}

	e := Event{
		Type:      eventType,
		Workspace: t.Workspace,
		Path:      rel,
	}
	w.logger.Debug("file changed",
		zap.String("workspace", e.Workspace),
		zap.String("path", e.Path),
		zap.Stringer("event", e.Type),
	)

	w.mu.RLock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(e)
	}
}

// target finds the workspace with the deepest directory containing name.
func (w *Watcher) target(name string) (Target, string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var best Target
	found := false
	for _, t := range w.targets {
		if name != t.Dir && !strings.HasPrefix(name, t.Dir+string(filepath.Separator)) {
			continue
		}
		if !found || len(t.Dir) > len(best.Dir) {
			best, found = t, true
		}
	}
	if !found {
		return Target{}, "", false
	}
	return best, relative(best.Dir, name), true
}

func relative(dir, name string) string {
	rel, err := filepath.Rel(dir, name)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
