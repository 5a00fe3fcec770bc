package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/taskloop/taskloop/internal/artifact"
)

// WaitForAnswers blocks until clarification answers appear on disk, the
// context is canceled, or the watcher fails. The watch covers the task
// directory rather than the file itself because the answers file does not
// exist yet when waiting starts, and editors commonly write via
// rename-over.
func WaitForAnswers(ctx context.Context, layout artifact.Layout) error {
	target := layout.ClarificationAnswers()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(layout.Dir(), 0755); err != nil {
		return err
	}
	if err := watcher.Add(layout.Dir()); err != nil {
		return err
	}

	// The file may have landed between the caller's check and the watch
	// being established.
	if artifact.Exists(target) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Clean(event.Name) == filepath.Clean(target) && artifact.Exists(target) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
