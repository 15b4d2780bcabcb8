// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

// DefaultSeedDebounce groups the burst of events an editor emits on save.
const DefaultSeedDebounce = 250 * time.Millisecond

// SeedWatcher upserts a seed file into the service whenever it changes.
// Upserts go through the service, so affected cached diagrams are
// invalidated. Phases removed from the file stay in the store.
//
// Thread Safety:
//
//	Start and Stop may be called from any goroutine. Stop is idempotent.
type SeedWatcher struct {
	path     string
	svc      *phasediagram.Service
	logger   *slog.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	reloads atomic.Int64
}

// NewSeedWatcher watches path. The parent directory is watched so that
// editors replacing the file by rename are seen. debounce <= 0 uses
// DefaultSeedDebounce.
func NewSeedWatcher(path string, svc *phasediagram.Service, logger *slog.Logger, debounce time.Duration) (*SeedWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultSeedDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &SeedWatcher{
		path:     abs,
		svc:      svc,
		logger:   logger.With("seed_file", abs),
		debounce: debounce,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start processes events until ctx is cancelled or Stop is called.
func (w *SeedWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop ends the event loop and waits for an in-flight reload.
func (w *SeedWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
	w.wg.Wait()
}

// Reloads returns the number of completed reloads.
func (w *SeedWatcher) Reloads() int64 { return w.reloads.Load() }

// Reload upserts every phase in the seed file and returns how many were
// written. A file that fails to parse changes nothing.
func (w *SeedWatcher) Reload(ctx context.Context) (int, error) {
	phases, err := store.LoadSeedFile(w.path)
	if err != nil {
		return 0, err
	}
	for i, p := range phases {
		if _, err := w.svc.UpsertPhase(ctx, p); err != nil {
			return i, fmt.Errorf("upsert %s: %w", p.PhaseID, err)
		}
	}
	w.reloads.Add(1)
	return len(phases), nil
}

func (w *SeedWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path ||
				!event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Seed watcher error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			n, err := w.Reload(ctx)
			if err != nil {
				w.logger.Error("Seed reload failed", "upserted", n, "error", err)
				continue
			}
			w.logger.Info("Seed reloaded", "phases", n)
		}
	}
}
