package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultExcludes are glob patterns (relative to the watched root) that are
// never indexed.
var DefaultExcludes = []string{
	"**/.git",
	"**/.git/**",
	"**/node_modules",
	"**/node_modules/**",
	"**/.doclens",
	"**/.doclens/**",
	"**/*.tmp",
	"**/*.swp",
	"**/~*",
}

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Excludes are doublestar patterns matched against root-relative paths.
	// DefaultExcludes always apply in addition.
	Excludes []string

	// DebounceWindow overrides the default 2s coalescing window.
	DebounceWindow time.Duration

	// Accept filters files by path before any event is emitted, typically
	// the extraction registry's Supported. Nil accepts everything.
	Accept func(path string) bool
}

// Watcher recursively watches a directory tree and emits debounced change
// events for files that pass the exclude and accept filters.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	root      string
	excludes  []string
	accept    func(path string) bool
	logger    *slog.Logger
	done      chan struct{}
}

// New creates a watcher over cfg.Root and registers every non-excluded
// subdirectory.
func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(cfg.DebounceWindow),
		root:      root,
		excludes:  append(append([]string{}, DefaultExcludes...), cfg.Excludes...),
		accept:    cfg.Accept,
		logger:    logger,
		done:      make(chan struct{}),
	}

	if err := w.watchTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events is the debounced event stream.
func (w *Watcher) Events() <-chan Event {
	return w.debouncer.Events()
}

// Close stops watching. Pending debounced events are discarded.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	w.debouncer.Close()
	return err
}

// watchTree registers dir and all non-excluded subdirectories.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.excluded(ev.Name) {
		return
	}

	// New directories must be registered before their contents change.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", ev.Name), slog.Any("error", err))
			}
			return
		}
	}

	if w.accept != nil && !w.accept(ev.Name) {
		return
	}

	now := time.Now()
	switch {
	case ev.Op.Has(fsnotify.Create):
		w.debouncer.Add(ev.Name, EventCreated, now)
	case ev.Op.Has(fsnotify.Write):
		w.debouncer.Add(ev.Name, EventModified, now)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.debouncer.Add(ev.Name, EventDeleted, now)
	}
}

// excluded matches path's root-relative form against the exclude patterns.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
