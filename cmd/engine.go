// Package cmd holds the synthnode subcommands and the engine wiring they
// share with the server.
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/synthnode/internal/config"
	"github.com/smazurov/synthnode/internal/engine"
	"github.com/smazurov/synthnode/internal/options"
)

// ReloadTimeout bounds a restart triggered by an options file change.
const ReloadTimeout = 30 * time.Second

// LoadEngineOptions reads engine options from path. A missing file yields
// the defaults.
func LoadEngineOptions(path string) (options.Options, error) {
	if path == "" {
		return options.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return options.Default(), nil
	}
	return options.FromFile(path)
}

// WatchEngineOptions reloads sup whenever the options file at path changes.
// Invalid files are logged and leave the running engine alone.
func WatchEngineOptions(path string, sup *engine.Supervisor, logger *slog.Logger) (*config.Watcher[options.Options], error) {
	watcher := config.NewWatcher(path, options.FromFile, logger,
		config.WithErrorHandler[options.Options](func(err error) {
			logger.Warn("Ignoring invalid engine options", "path", path, "error", err)
		}),
	)

	watcher.OnReload(func(opts options.Options) {
		ctx, cancel := context.WithTimeout(context.Background(), ReloadTimeout)
		defer cancel()

		changed, err := sup.Reload(ctx, opts)
		switch {
		case err != nil:
			logger.Error("Failed to apply engine options", "path", path, "error", err)
		case changed:
			logger.Info("Engine options applied", "path", path, "status", sup.Status())
		default:
			logger.Debug("Engine options reloaded, nothing changed", "path", path)
		}
	})

	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
}
