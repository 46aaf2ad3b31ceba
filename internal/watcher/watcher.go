// Package watcher observes the documents directory and emits debounced
// change batches. A batch is a reindex trigger; the indexer's own change
// detection works out what actually changed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation classifies a file system event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
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
	default:
		return "UNKNOWN"
	}
}

// Event is one observed document file change.
type Event struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long to wait after the last event before
	// emitting a batch. Editors save in bursts; one batch per burst.
	DebounceWindow time.Duration

	// BufferSize is the raw event channel buffer.
	BufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		BufferSize:     256,
	}
}

// DirWatcher watches a documents directory tree for changes to document
// files (.yaml, .yml, .json, .md).
type DirWatcher struct {
	dir       string
	fs        *fsnotify.Watcher
	debouncer *Debouncer
}

// NewDirWatcher creates a watcher over dir and its subdirectories.
func NewDirWatcher(dir string, opts Options) (*DirWatcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &DirWatcher{
		dir:       dir,
		fs:        fs,
		debouncer: NewDebouncer(opts.DebounceWindow),
	}

	if err := w.addRecursive(dir); err != nil {
		fs.Close()
		return nil, err
	}

	return w, nil
}

// addRecursive registers dir and every subdirectory with fsnotify.
func (w *DirWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// documentFile reports whether the path looks like a document source file.
func documentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".md":
		return true
	}
	return false
}

// Run consumes file system events until the context is canceled. Batches
// appear on Batches.
func (w *DirWatcher) Run(ctx context.Context) {
	defer w.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *DirWatcher) handle(ev fsnotify.Event) {
	// New subdirectory: start watching it too.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				slog.Warn("watch_subdirectory_failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if !documentFile(ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(Event{
		Path:      ev.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// Batches returns the channel of debounced event batches.
func (w *DirWatcher) Batches() <-chan []Event {
	return w.debouncer.Output()
}

// Close stops watching. Safe to call after Run has returned.
func (w *DirWatcher) Close() error {
	return w.fs.Close()
}
