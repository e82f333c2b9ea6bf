package pipegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher regenerates the output file whenever the .pmd config or any
// shader it references changes. Rapid saves are debounced so an editor
// writing a file several times in a row triggers one regeneration.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	gen         *Generator
	configPath  string
	outPath     string
	interesting map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	onGenerate  func([]byte)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must stay quiet before the watcher
// regenerates. The default is 500ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDur = d
	}
}

// WithOnGenerate registers a callback invoked with the generated bytes
// after every successful regeneration. Tests use this to observe the
// watcher without polling the output file.
func WithOnGenerate(fn func([]byte)) WatcherOption {
	return func(w *Watcher) {
		w.onGenerate = fn
	}
}

// NewWatcher creates a Watcher that regenerates outPath from the .pmd
// file at configPath. Call Start to begin watching.
func NewWatcher(gen *Generator, configPath, outPath string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher:     fw,
		gen:         gen,
		configPath:  configPath,
		outPath:     outPath,
		interesting: make(map[string]bool),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start generates once, then watches the inputs in a goroutine.
// It is non-blocking; use Stop or cancel ctx to end watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// The initial generation must succeed; later failures are
	// reported and watching continues.
	if err := w.regenerate(ctx); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		Logger().Warn("error closing watcher", "error", err)
	}
	Logger().Info("watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
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
			Logger().Warn("watch error", "error", err)

		case <-debounceTicker.C:
			w.processDebounced(ctx)
		}
	}
}

// handleEvent records a relevant filesystem event for debounced
// processing. Directories are watched, so events for unrelated
// neighbors arrive here and are filtered out.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.interesting[filepath.Clean(event.Name)] {
		return
	}
	Logger().Debug("input changed", "path", event.Name, "op", event.Op.String())
	w.debounceMap[filepath.Clean(event.Name)] = time.Now()
}

// processDebounced regenerates once if any recorded event has settled
// past the debounce window.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	settled := false
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled = true
		}
	}
	w.mu.Unlock()

	if !settled {
		return
	}
	if err := w.regenerate(ctx); err != nil {
		// Broken intermediate states are expected while editing.
		Logger().Warn("regeneration failed", "error", err)
	}
}

// regenerate runs the generator, writes the output atomically, and
// refreshes the watched input set (the config may now reference
// different shaders).
func (w *Watcher) regenerate(ctx context.Context) error {
	out, err := w.gen.GenerateFile(ctx, w.configPath)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(w.outPath, out); err != nil {
		return err
	}
	Logger().Info("output written", "path", w.outPath, "bytes", len(out))

	if err := w.refreshWatches(); err != nil {
		return err
	}
	if w.onGenerate != nil {
		w.onGenerate(out)
	}
	return nil
}

// refreshWatches points the fsnotify watcher at the parent directories
// of the config and every shader it currently references. Watching
// directories instead of files survives the delete-and-rename save
// strategy most editors use.
func (w *Watcher) refreshWatches() error {
	src, err := os.ReadFile(w.configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	configs, err := ParseConfig(string(src))
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(w.configPath)
	interesting := map[string]bool{filepath.Clean(w.configPath): true}
	dirs := map[string]bool{filepath.Clean(baseDir): true}
	for _, cfg := range configs {
		shaderPath := filepath.Clean(filepath.Join(baseDir, cfg.Shader))
		interesting[shaderPath] = true
		dirs[filepath.Dir(shaderPath)] = true
	}

	for dir := range dirs {
		// Add is idempotent for already-watched directories.
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.interesting = interesting
	w.mu.Unlock()
	return nil
}

// WriteFileAtomic writes data to path via a temp file and rename, so
// readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
