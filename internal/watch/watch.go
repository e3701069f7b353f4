// Package watch re-runs analysis whenever files under a repository
// root change, coalescing bursts of events through a debounce window.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the settle window applied when Options.Debounce
// is zero.
const DefaultDebounce = 500 * time.Millisecond

// ErrNilRebuild indicates no rebuild callback was supplied.
var ErrNilRebuild = errors.New("rebuild callback is required")

// Rebuild runs one analysis pass. The paths argument lists the
// filesystem paths whose events triggered the pass, deduplicated, in
// arrival order; it is nil for the initial pass.
type Rebuild func(ctx context.Context, paths []string) error

// Options configures a watcher.
type Options struct {
	// Root is the directory tree to watch.
	Root string

	// Debounce is how long the tree must stay quiet before a rebuild
	// fires. Zero means DefaultDebounce.
	Debounce time.Duration

	// ExcludeDirs are directory base names never descended into.
	// Hidden directories are always skipped.
	ExcludeDirs []string

	// Rebuild is invoked once up front and after each settled burst.
	// Required.
	Rebuild Rebuild

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher re-runs analysis on filesystem changes.
type Watcher struct {
	opts     Options
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

// New validates opts and returns a watcher. The filesystem is not
// touched until Run.
func New(opts Options) (*Watcher, error) {
	if opts.Rebuild == nil {
		return nil, ErrNilRebuild
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	return &Watcher{
		opts:     opts,
		root:     root,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "watch")),
	}, nil
}

// Run performs one initial analysis pass, then blocks re-running it
// after every settled burst of changes until the context is canceled.
// A failed initial pass aborts Run; later failures are logged and
// watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	err = w.addTree(fsw)
	if err != nil {
		return err
	}

	w.logger.Info("watching for changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))

	err = w.opts.Rebuild(ctx, nil)
	if err != nil {
		return fmt.Errorf("initial analysis: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	var pending []string

	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if w.skip(event.Name) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				w.maybeWatchDir(fsw, event.Name)
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if _, dup := seen[event.Name]; !dup {
				seen[event.Name] = struct{}{}
				pending = append(pending, event.Name)
			}

			timer.Reset(w.debounce)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("watch error", slog.Any("error", watchErr))

		case <-timer.C:
			batch := pending
			pending = nil
			seen = make(map[string]struct{})

			w.logger.Info("changes settled, re-analyzing", slog.Int("paths", len(batch)))

			err = w.opts.Rebuild(ctx, batch)
			if err != nil {
				w.logger.Error("analysis failed", slog.Any("error", err))
			}
		}
	}
}

// addTree registers every non-excluded directory under the root.
func (w *Watcher) addTree(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && w.skip(path) {
			return fs.SkipDir
		}

		err := fsw.Add(path)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}

		return nil
	})
}

// maybeWatchDir starts watching a newly created directory so files
// added inside it are seen. Directories populated before the watch is
// in place are missed until the next event touches them.
func (w *Watcher) maybeWatchDir(fsw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	err = fsw.Add(path)
	if err != nil {
		w.logger.Warn("watch new directory",
			slog.String("path", path),
			slog.Any("error", err))
	}
}

// skip reports whether path sits under a hidden or excluded segment
// relative to the root.
func (w *Watcher) skip(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}

	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if hidden(seg) || slices.Contains(w.opts.ExcludeDirs, seg) {
			return true
		}
	}

	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
