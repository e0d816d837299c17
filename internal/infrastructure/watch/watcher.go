// Package watch runs workflow scripts dropped into a debug directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce = 300 * time.Millisecond
	defaultPattern  = "**/*.js"
	defaultWorkers  = 4

	// maxQueueSize bounds paths waiting for a worker after a flush.
	maxQueueSize = 200
)

// Handler processes one changed script. rel is the slash-separated path
// relative to the watched directory.
type Handler func(ctx context.Context, path, rel string)

// Config configures a Watcher.
type Config struct {
	Dir string
	// Pattern is a doublestar glob matched against paths relative to Dir.
	Pattern  string
	Debounce time.Duration
	// Workers limits concurrently handled scripts.
	Workers int
}

// Watcher watches a directory tree and hands created or modified scripts
// to a handler after a quiet period.
type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	workers  int
	handler  Handler
	logger   *slog.Logger

	ready chan struct{}
}

// New creates a watcher. The pattern is validated up front.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = defaultPattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", cfg.Pattern)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      filepath.Clean(cfg.Dir),
		pattern:  cfg.Pattern,
		debounce: cfg.Debounce,
		workers:  cfg.Workers,
		handler:  handler,
		logger:   logger,
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once the directory tree is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Match returns the relative path of path and whether it matches the
// pattern.
func (w *Watcher) Match(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	ok, err := doublestar.Match(w.pattern, rel)
	return rel, err == nil && ok
}

// Existing returns the matching scripts already present, sorted.
func (w *Watcher) Existing() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(w.dir), w.pattern, doublestar.WithFilesOnly())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(w.dir, filepath.FromSlash(m))
	}
	sort.Strings(paths)
	return paths, nil
}

// Run watches until ctx is cancelled. Scripts still queued when ctx ends
// are dropped; scripts being handled finish first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addTree(watcher, w.dir); err != nil {
		return err
	}
	close(w.ready)
	w.logger.InfoContext(ctx, "watching for workflow scripts", "dir", w.dir, "pattern", w.pattern)

	var mu sync.Mutex
	pending := make(map[string]string)
	queue := make(chan [2]string, maxQueueSize)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if ctx.Err() != nil {
					continue
				}
				w.handle(ctx, item[0], item[1])
			}
		}()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		rels := pending
		pending = make(map[string]string)
		mu.Unlock()

		sort.Strings(batch)
		for _, p := range batch {
			select {
			case queue <- [2]string{p, rels[p]}:
			case <-ctx.Done():
				return
			}
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer func() {
		timer.Stop()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(watcher, event.Name); err != nil {
						w.logger.WarnContext(ctx, "failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			rel, ok := w.Match(event.Name)
			if !ok {
				continue
			}

			mu.Lock()
			pending[event.Name] = rel
			mu.Unlock()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

// handle runs the handler, containing panics to the one script.
func (w *Watcher) handle(ctx context.Context, path, rel string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "workflow script handler panicked", "path", path, "panic", r)
		}
	}()
	w.handler(ctx, path, rel)
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %q: %w", path, err)
		}
		return nil
	})
}
