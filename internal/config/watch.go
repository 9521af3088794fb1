package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc produces a fresh Config, typically by calling Resolve with the
// same overrides used at startup.
type ReloadFunc func() (*Config, error)

// Watch reloads the config into h whenever the file at h.Path() is written
// or created, until ctx is done. The parent directory is watched
// rather than the file so editors that save by rename are noticed. A reload
// that fails keeps the previous config in place. onChange, if non-nil, is
// called after each successful update.
func Watch(ctx context.Context, h *Holder, reload ReloadFunc, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(h.Path())
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(target), err)
	}

	logger.Debug("watching config file", slog.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := reload()
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", target),
					slog.String("error", err.Error()),
				)

				continue
			}

			guardChanged := h.Update(cfg)
			logger.Info("config reloaded",
				slog.String("path", target),
				slog.Bool("guard_changed", guardChanged),
			)

			if onChange != nil {
				onChange(cfg)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
