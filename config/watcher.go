package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// ApplyFunc receives every successfully reloaded configuration
type ApplyFunc func(ctx context.Context, cfg *Config) error

// Watcher reloads the loader's layers when one of their files changes and
// hands the result to an ApplyFunc. Directories are watched instead of
// files so editors that replace files by rename are picked up.
type Watcher struct {
	loader   *Loader
	apply    ApplyFunc
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	reloads atomic.Int64
}

// NewWatcher creates a watcher for the loader's layers (not yet started)
func NewWatcher(loader *Loader, apply ApplyFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		loader:   loader,
		apply:    apply,
		logger:   logger.With("component", "config-watcher"),
		debounce: 100 * time.Millisecond,
	}
}

// Start begins watching. The watch ends when ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fs != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Watcher", "Start", "already started check")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Watcher", "Start", "create file watcher")
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, layer := range w.loader.Layers() {
		abs, err := filepath.Abs(layer)
		if err != nil {
			_ = fsw.Close()
			return errors.Wrap(err, "Watcher", "Start", "resolve layer path")
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return errors.Wrap(err, "Watcher", "Start", "watch "+dir)
		}
	}

	w.fs = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(ctx, fsw, files, w.done)

	w.logger.Info("Watching configuration", "files", len(files))
	return nil
}

// Stop ends the watch and waits for the loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw, done := w.fs, w.done
	w.fs, w.done = nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	close(done)
	err := fsw.Close()
	w.wg.Wait()
	return err
}

// Reloads returns how many reloads were applied successfully
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, files map[string]bool, done <-chan struct{}) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !files[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Configuration reload failed, keeping current configuration", "error", err)
		return
	}
	if err := w.apply(ctx, cfg); err != nil {
		w.logger.Error("Applying reloaded configuration failed", "error", err)
		return
	}
	w.reloads.Add(1)
	w.logger.Info("Configuration reloaded", "services", len(cfg.Services))
}
