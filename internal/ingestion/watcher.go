package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/rfgraph/internal/config"
)

// DefaultDebounce is the quiet period after the last change before a
// re-ingestion starts.
const DefaultDebounce = 2 * time.Second

// RunHandler receives every snapshot produced in watch mode. The previous
// snapshot is closed once the handler returns, so the handler must stop
// handing it out before returning.
type RunHandler func(snap *Snapshot, result *PipelineResult)

// WatchOptions configures Watch.
type WatchOptions struct {
	Options

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// OnRun is called after each successful run, including the initial one.
	OnRun RunHandler

	// OnRelease is called when the current snapshot is about to be closed
	// without a replacement: before a badger re-ingestion, which needs the
	// database lock, and when Watch returns. Once it returns the snapshot
	// must no longer be in use.
	OnRelease func()
}

// Watch ingests cfg.ProjectRoot, then re-ingests whenever a .robot or
// .resource file changes. Changes are batched until Debounce passes without
// further events. Blocks until ctx is canceled.
func Watch(ctx context.Context, cfg *config.Config, opts WatchOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
		opts.Logger = logger
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return err
	}
	patterns, err := loadGitignore(root)
	if err != nil {
		return err
	}
	matcher := gitignore.NewMatcher(patterns)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatches(watcher, root, root, matcher); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	var current *Snapshot
	release := func(snap *Snapshot) {
		if opts.OnRelease != nil {
			opts.OnRelease()
		}
		_ = snap.Close()
	}
	defer func() {
		if current != nil {
			release(current)
		}
	}()

	run := func() {
		previous := current
		current = nil
		// The badger backend holds a directory lock, so release it first.
		if previous != nil && cfg.Backend == config.BackendBadger {
			release(previous)
			previous = nil
		}
		snap, result, err := RunPipeline(ctx, cfg, opts.Options)
		if err != nil {
			logger.Error("re-ingestion failed", "err", err)
			current = previous
			return
		}
		current = snap
		if opts.OnRun != nil {
			opts.OnRun(snap, result)
		}
		if previous != nil {
			_ = previous.Close()
		}
	}
	run()

	logger.Info("watching for changes", "root", root)

	changed := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			relPath, err := filepath.Rel(root, event.Name)
			if err != nil || isBlacklisted(relPath) || matcher.Match(splitPath(relPath), false) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addWatches(watcher, event.Name, root, matcher); err != nil {
						logger.Warn("watching new directory", "path", relPath, "err", err)
					}
					continue
				}
			}

			if !isIngestible(filepath.Base(event.Name)) {
				continue
			}

			changed[filepath.ToSlash(relPath)] = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)

		case <-timer.C:
			if len(changed) == 0 {
				continue
			}
			logger.Info("change detected, re-ingesting", "files", len(changed))
			changed = make(map[string]bool)
			run()
		}
	}
}

// addWatches watches dir and every directory below it that Crawl would
// descend into.
func addWatches(watcher *fsnotify.Watcher, dir, root string, matcher gitignore.Matcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			relPath, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if blacklistedDirs[d.Name()] || matcher.Match(splitPath(relPath), true) {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}
