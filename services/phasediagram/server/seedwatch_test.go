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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/cache"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/config"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

const wustite = `  - phase_id: mp-18905
    formula: FeO
    formation_energy_per_atom: -1.8
`

func newWatchedService(t *testing.T) (*phasediagram.Service, *cache.Loader) {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	loader := cache.NewLoader(cache.NewMemoryBackend(0))
	svc := phasediagram.NewService(st, phasediagram.WithCache(loader))
	t.Cleanup(func() { _ = svc.Close() })
	return svc, loader
}

func hasEntry(d *phasediagram.Diagram, id string) bool {
	for _, e := range d.Entries {
		if e.PhaseID == id {
			return true
		}
	}
	return false
}

func TestSeedWatcher_Reload(t *testing.T) {
	svc, _ := newWatchedService(t)
	w, err := NewSeedWatcher(writeSeed(t), svc, nil, 0)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	n, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(1), w.Reloads())

	d, err := svc.PhaseDiagram(context.Background(), "Fe-O", true)
	require.NoError(t, err)
	assert.True(t, hasEntry(d, "mp-19770"))
}

func TestSeedWatcher_ReloadInvalidFileChangesNothing(t *testing.T) {
	svc, _ := newWatchedService(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases: [{phase_id: x, formula: Xx2}]\n"), 0o600))

	w, err := NewSeedWatcher(path, svc, nil, 0)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	_, err = w.Reload(context.Background())
	assert.Error(t, err)
	assert.Zero(t, w.Reloads())
}

func TestSeedWatcher_PicksUpEdits(t *testing.T) {
	svc, loader := newWatchedService(t)
	path := writeSeed(t)
	w, err := NewSeedWatcher(path, svc, nil, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = w.Reload(context.Background())
	require.NoError(t, err)
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	ctx := context.Background()
	before, err := svc.PhaseDiagram(ctx, "Fe-O", true)
	require.NoError(t, err)
	require.False(t, hasEntry(before, "mp-18905"))

	require.NoError(t, os.WriteFile(path, []byte(seedYAML+wustite), 0o600))

	require.Eventually(t, func() bool { return w.Reloads() >= 2 }, 5*time.Second, 10*time.Millisecond)
	after, err := svc.PhaseDiagram(ctx, "Fe-O", true)
	require.NoError(t, err)
	assert.True(t, hasEntry(after, "mp-18905"), "cached diagram was invalidated by the reload")
	assert.Positive(t, loader.Stats().Invalidated)
}

func TestSeedWatcher_StopIdempotent(t *testing.T) {
	svc, _ := newWatchedService(t)
	w, err := NewSeedWatcher(writeSeed(t), svc, nil, 0)
	require.NoError(t, err)
	w.Start(context.Background())

	w.Stop()
	w.Stop()
}

func TestNew_WatchSeed(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.Store.WatchSeed = true })
	require.NotNil(t, s.seedWatcher)
	require.NoError(t, s.Close())
}

func TestNew_StdoutTracing(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.Tracing.Exporter = config.ExporterStdout })
	assert.NotNil(t, s.tracerCleanup)
	assert.Equal(t, 200, get(t, s, "/health").Code)
}
