package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 1 * time.Second

// WatchFile reloads the configuration whenever its file changes on disk.
// Editors and config mounts typically replace the file (rename+create), so
// the parent directory is watched and events are debounced before reload.
// The watcher stops when ctx is done.
func WatchFile(ctx context.Context, m *Manager, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(m.Path())
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		target := filepath.Clean(m.Path())
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(watchDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "err", err)
			case <-pending:
				pending = nil
				if err := m.Reload(); err != nil {
					logger.Error("config reload after file change failed", "err", err)
					continue
				}
				logger.Info("configuration reloaded after file change", "path", target)
			}
		}
	}()
	return nil
}
