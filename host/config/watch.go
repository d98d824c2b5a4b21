package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls apply with the new configuration each time filename is
// written. Invalid files are logged and skipped. Returns when ctx is done.
func Watch(ctx context.Context, filename string, logger *slog.Logger, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(filename)); err != nil {
		return err
	}
	target := filepath.Clean(filename)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			c, err := Read(filename)
			if err != nil {
				logger.Warn("config reload failed", "file", filename, "err", err)
				continue
			}
			logger.Info("config reloaded", "file", filename, "buses", len(c.Buses))
			apply(c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher", "err", err)
		}
	}
}
