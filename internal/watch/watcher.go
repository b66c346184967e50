// Package watch drives incremental re-indexing from filesystem events.
//
// A recursive fsnotify watcher feeds a debouncer that coalesces bursts per
// path; the per-workspace service applies the settled batches to the index,
// degrades to a bounded re-walk under queue pressure, and commits on drain
// or on the auto-commit interval, whichever comes first.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was renamed away from its old path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the affected file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// IsDir indicates if the event is for a directory.
	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// junkDirs are directories never watched or walked.
var junkDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "bin": {}, "obj": {},
	"dist": {}, "build": {}, "target": {}, ".idea": {}, ".vs": {},
	"__pycache__": {}, ".venv": {}, "vendor": {},
}

// IsJunkDir reports whether a directory name is excluded from watching and
// walking.
func IsJunkDir(name string) bool {
	_, ok := junkDirs[name]
	return ok
}

// Watcher watches one workspace tree recursively.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	events  chan FileEvent
	errs    chan error
	stopped chan struct{}
	once    sync.Once
}

// NewWatcher creates a recursive watcher rooted at the workspace path.
func NewWatcher(root string, bufferSize int) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	w := &Watcher{
		root:    root,
		fsw:     fsw,
		events:  make(chan FileEvent, bufferSize),
		errs:    make(chan error, 16),
		stopped: make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start runs the event loop until the context is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Events returns the channel of file events.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopped)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	defer close(w.errs)

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.stopped:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") && name != ".gitignore" {
		return
	}

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories join the watch set.
		if isDir {
			if !IsJunkDir(name) {
				if err := w.addRecursive(ev.Name); err != nil {
					slog.Debug("failed to watch new directory",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}
			}
			return
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	event := FileEvent{
		Path:      ev.Name,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	}

	select {
	case w.events <- event:
	default:
		slog.Warn("watcher event buffer full, dropping event",
			slog.String("path", ev.Name))
	}
}

// addRecursive watches a directory tree, skipping junk directories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (IsJunkDir(name) || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
