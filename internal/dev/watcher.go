package dev

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change represents a detected file change.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Files are the files to watch. Their parent directories are watched so
	// editors that replace a file on save are still noticed.
	Files []string

	// Debounce is the quiet period before changes are reported.
	Debounce time.Duration

	// Logger for watcher messages. Default: slog.Default().
	Logger *slog.Logger
}

// Watcher reports changes to a fixed set of files in debounced batches.
type Watcher struct {
	config   WatcherConfig
	files    map[string]struct{}
	logger   *slog.Logger
	mu       sync.Mutex
	onChange func([]Change)
	running  bool
	stopCh   chan struct{}
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Debounce == 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	files := make(map[string]struct{}, len(config.Files))
	for _, f := range config.Files {
		if f == "" {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		files[filepath.Clean(f)] = struct{}{}
	}

	return &Watcher{
		config: config,
		files:  files,
		logger: config.Logger.With("component", "watcher"),
	}
}

// OnChange sets the callback for file changes.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start watches until ctx is done or Stop is called. It returns an error
// only if the underlying watch cannot be set up.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return err
		}
		w.logger.Debug("watching", "dir", dir)
	}

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			pending[filepath.Clean(ev.Name)] |= ev.Op
			timer.Reset(w.config.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		case <-timer.C:
			w.flush(pending)
			pending = make(map[string]fsnotify.Op)
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// relevant reports whether ev touches a watched file in a way that may
// change its content.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if _, ok := w.files[filepath.Clean(ev.Name)]; !ok {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) flush(pending map[string]fsnotify.Op) {
	if len(pending) == 0 {
		return
	}
	changes := make([]Change, 0, len(pending))
	for path, op := range pending {
		changes = append(changes, Change{Path: path, Op: op})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	w.mu.Lock()
	callback := w.onChange
	w.mu.Unlock()

	for _, c := range changes {
		w.logger.Info("file changed", "path", c.Path, "op", c.Op.String())
	}
	if callback != nil {
		callback(changes)
	}
}
