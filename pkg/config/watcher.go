// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// stamp identifies one version of a watched file.
type stamp struct {
	modTime time.Time
	size    int64
	missing bool
}

func statFile(path string) stamp {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{missing: true}
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}
}

// Watcher polls the configuration file and its profile variant and reloads
// when either changes. A reload that fails to load or validate keeps the
// previous configuration.
type Watcher struct {
	paths    []string
	interval time.Duration
	logger   *slog.Logger
	load     func() (*Config, error)

	mu        sync.RWMutex
	stamps    map[string]stamp
	config    *Config
	listeners []func(*Config)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval. Default one second.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads the configuration once. Overrides are reapplied on every
// reload.
func NewWatcher(path, profile string, overrides []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		interval: time.Second,
		logger:   slog.Default(),
		stamps:   make(map[string]stamp),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		load: func() (*Config, error) {
			cfg, err := LoadWithProfile(path, profile, overrides...)
			if err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range []string{path, profileConfigPath(path, profile)} {
		if p != "" {
			w.paths = append(w.paths, p)
			w.stamps[p] = statFile(p)
		}
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

// OnChange registers a callback run after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Reload loads the configuration now and notifies listeners on success.
func (w *Watcher) Reload() error {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config.reload.failed", "error", err)
		return err
	}

	w.mu.Lock()
	w.config = cfg
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config.reload.done", "paths", w.paths)
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Start polls until ctx is done or Stop is called. Without a config file
// there is nothing to watch and Start returns immediately.
func (w *Watcher) Start(ctx context.Context) {
	if len(w.paths) == 0 {
		close(w.doneCh)
		return
	}
	go w.watch(ctx)
}

// Stop ends polling and waits for the loop to exit. It must follow Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				_ = w.Reload()
			}
		}
	}
}

// changed records the current stamps and reports whether any differs from
// the last poll. A file that disappears is not a change.
func (w *Watcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, p := range w.paths {
		now := statFile(p)
		if now.missing {
			continue
		}
		if prev := w.stamps[p]; prev != now {
			w.stamps[p] = now
			changed = true
		}
	}
	return changed
}
