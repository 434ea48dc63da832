package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/benjaminschreck/go-docbind/pkg/docbind"
)

// renderJob renders one template with one data file.
type renderJob struct {
	engine       *docbind.Engine
	logger       *docbind.Logger
	templatePath string
	dataPath     string
	outputPath   string
}

func (j *renderJob) run(ctx context.Context) error {
	data, err := docbind.LoadData(j.dataPath)
	if err != nil {
		return err
	}
	return j.engine.RenderFile(ctx, j.templatePath, data, j.outputPath)
}

// watchAndRender re-runs job after the template or data file changes and stays quiet
// for debounce. It returns when ctx is done.
func watchAndRender(ctx context.Context, job *renderJob, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often save by renaming over the file, so the directories are watched.
	watched := map[string]bool{
		filepath.Clean(job.templatePath): true,
		filepath.Clean(job.dataPath):     true,
	}
	dirs := map[string]bool{}
	for path := range watched {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	job.logger.Info("Watching %s and %s", job.templatePath, job.dataPath)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			job.logger.Debug("Change detected: %s", event)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			job.logger.Warn("Watch error: %v", err)

		case <-pending:
			pending = nil
			job.engine.Invalidate(job.templatePath)
			if err := job.run(ctx); err != nil {
				job.logger.Error("Render failed: %v", err)
			}
		}
	}
}
