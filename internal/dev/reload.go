package dev

import (
	"context"
	"log/slog"
	"time"
)

// Redeployer is notified when watched assets change. The UI module
// implements it by sending ui-reload to every live component.
type Redeployer interface {
	Redeploy() int
}

// Reloader redeploys connected sessions whenever watched files change.
type Reloader struct {
	watcher *Watcher
	target  Redeployer
	logger  *slog.Logger
}

// NewReloader watches files and calls target.Redeploy after each batch of changes.
func NewReloader(files []string, target Redeployer, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reloader{
		watcher: NewWatcher(WatcherConfig{
			Files:    files,
			Debounce: 150 * time.Millisecond,
			Logger:   logger,
		}),
		target: target,
		logger: logger.With("component", "reloader"),
	}
	r.watcher.OnChange(r.reload)
	return r
}

// Run blocks until ctx is done. A cancelled context is not an error.
func (r *Reloader) Run(ctx context.Context) error {
	err := r.watcher.Start(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Reloader) reload(changes []Change) {
	n := r.target.Redeploy()
	r.logger.Info("assets changed, sessions reloaded", "files", len(changes), "notified", n)
}
