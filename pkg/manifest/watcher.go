package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses bursts of write events from editors that save in
// multiple steps.
const watchDebounce = 500 * time.Millisecond

// Watch watches the manifest file and calls reloadFn with the freshly loaded
// manifest on every change that parses and validates. Invalid intermediate
// states are logged and skipped. Watch blocks until the context is cancelled.
func (l *Loader) Watch(ctx context.Context, path string, reloadFn func(*Manifest) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	l.logger.WithField("path", path).Info("watching manifest for changes")

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			l.logger.WithField("op", event.Op.String()).Debug("manifest changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(watchDebounce, func() {
				m, loadErr := l.Load(path)
				if loadErr != nil {
					l.logger.WithError(loadErr).Warn("manifest reload skipped")
					return
				}
				if reloadErr := reloadFn(m); reloadErr != nil {
					l.logger.WithError(reloadErr).Error("manifest reload failed")
				}
			})

			// Some editors replace the file, dropping the watch.
			if event.Op&fsnotify.Create != 0 {
				_ = watcher.Add(path)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.WithError(watchErr).Error("watcher error")
		}
	}
}
