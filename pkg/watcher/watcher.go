package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/build-intel/pkg/changes"
	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

// batchWindow is how long the watcher accumulates raw events before
// emitting a batch
const batchWindow = 100 * time.Millisecond

// ChangeEvent is a batch of file system changes of one category
type ChangeEvent struct {
	Category  model.FileCategory
	Paths     []string
	Timestamp time.Time
}

// ProjectWatcher watches a project tree for source, header, resource, and
// build configuration changes
type ProjectWatcher struct {
	watcher     *fsnotify.Watcher
	projectRoot string
	events      chan ChangeEvent
	done        chan struct{}
	stopOnce    sync.Once
}

// NewProjectWatcher creates a watcher rooted at projectRoot
func NewProjectWatcher(projectRoot string) (*ProjectWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &ProjectWatcher{
		watcher:     watcher,
		projectRoot: projectRoot,
		events:      make(chan ChangeEvent, 100),
		done:        make(chan struct{}),
	}, nil
}

// Start registers all project directories and begins emitting batched events
func (pw *ProjectWatcher) Start(ctx context.Context) error {
	count, err := pw.watchProjectDirs()
	if err != nil {
		return err
	}

	logging.Info("watching project", "path", pw.projectRoot, "directories", count)

	go pw.processEvents(ctx)

	return nil
}

// watchProjectDirs registers every directory in the project tree except
// build outputs and other ignored directories. fsnotify watches are not
// recursive, so each directory is added individually.
func (pw *ProjectWatcher) watchProjectDirs() (int, error) {
	count := 0

	err := filepath.WalkDir(pw.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == pw.projectRoot {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if changes.IsIgnoredDir(d.Name()) && path != pw.projectRoot {
			return filepath.SkipDir
		}

		if err := pw.watcher.Add(path); err != nil {
			logging.Warn("cannot watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking project root %s: %w", pw.projectRoot, err)
	}

	return count, nil
}

// processEvents classifies raw fsnotify events and batches them per
// category so downstream analysis sees one event per burst
func (pw *ProjectWatcher) processEvents(ctx context.Context) {
	batches := make(map[model.FileCategory][]string)

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		// Build configuration first: it invalidates the most downstream state
		for _, category := range []model.FileCategory{
			model.CategoryBuildConfig,
			model.CategoryHeader,
			model.CategorySource,
			model.CategoryResource,
			model.CategoryOther,
		} {
			paths := batches[category]
			if len(paths) == 0 {
				continue
			}
			pw.events <- ChangeEvent{
				Category:  category,
				Paths:     paths,
				Timestamp: time.Now(),
			}
			delete(batches, category)
		}
	}

	for {
		select {
		case <-ctx.Done():
			pw.watcher.Close()
			close(pw.events)
			return

		case <-pw.done:
			close(pw.events)
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				close(pw.events)
				return
			}

			if event.Op.Has(fsnotify.Create) {
				// New directories need their own watch
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					pw.maybeWatchNewDir(event.Name)
					continue
				}
			}

			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}

			category := changes.Classify(event.Name)
			batches[category] = append(batches[category], event.Name)
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				close(pw.events)
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// maybeWatchNewDir adds a watch for a freshly created directory
func (pw *ProjectWatcher) maybeWatchNewDir(path string) {
	if changes.IsIgnoredDir(filepath.Base(path)) {
		return
	}
	if err := pw.watcher.Add(path); err == nil {
		logging.Debug("watching new directory", "path", path)
	}
}

// Events returns the channel of batched change events
func (pw *ProjectWatcher) Events() <-chan ChangeEvent {
	return pw.events
}

// Stop stops the watcher
func (pw *ProjectWatcher) Stop() error {
	pw.stopOnce.Do(func() { close(pw.done) })
	return pw.watcher.Close()
}
