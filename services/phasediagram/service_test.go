// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasediagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/cache"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/hull"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/observability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/stability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

type testService struct {
	svc     *Service
	store   *store.MemoryStore
	loader  *cache.Loader
	metrics *observability.Metrics
}

func newTestService(t *testing.T, phases ...store.Phase) testService {
	t.Helper()
	st, err := store.NewMemoryStore(phases...)
	require.NoError(t, err)
	m := observability.NewMetrics(prometheus.NewRegistry())
	loader := cache.NewLoader(cache.NewMemoryBackend(0), cache.WithObserver(m))
	svc := NewService(st, WithCache(loader), WithMetrics(m))
	t.Cleanup(func() { _ = svc.Close() })
	return testService{svc: svc, store: st, loader: loader, metrics: m}
}

func lithiumIronOxides() []store.Phase {
	return append(ironOxides(),
		phase("mp-1960", "Li2O", -2.07),
		phase("mp-19419", "LiFeO2", -1.95),
		phase("mp-135", "Li", 0),
	)
}

func TestService_PhaseDiagram(t *testing.T) {
	ts := newTestService(t, lithiumIronOxides()...)
	ctx := context.Background()

	d, err := ts.svc.PhaseDiagram(ctx, "O-Li-Fe", true)
	require.NoError(t, err)
	assert.Equal(t, "Fe-Li-O", d.Chemsys)
	assert.Len(t, d.Entries, 8)

	binary, err := ts.svc.PhaseDiagram(ctx, "Fe-O", true)
	require.NoError(t, err)
	assert.Len(t, binary.Entries, 5, "subsystem query ignores Li phases")
}

func TestService_CachesDiagrams(t *testing.T) {
	ts := newTestService(t, ironOxides()...)
	ctx := context.Background()

	first, err := ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.NoError(t, err)
	second, err := ts.svc.PhaseDiagram(ctx, "O-Fe", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, ok := ts.svc.CacheStats()
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.CacheHitsTotal))

	_, err = ts.svc.PhaseDiagram(ctx, "Fe-O", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ts.svc.loader.Stats().Misses, "include_unstable is part of the key")
}

func TestService_UpsertInvalidatesSupersystems(t *testing.T) {
	ts := newTestService(t, lithiumIronOxides()...)
	ctx := context.Background()

	for _, cs := range []string{"Fe-O", "Fe-Li-O", "Li-O"} {
		_, err := ts.svc.PhaseDiagram(ctx, cs, false)
		require.NoError(t, err)
	}

	resp, err := ts.svc.UpsertPhase(ctx, phase("mp-353", "FeO", -7.0))
	require.NoError(t, err)
	assert.Equal(t, "Fe-O", resp.Chemsys)
	assert.Equal(t, []string{"Fe-O"}, resp.Invalidated)
	assert.Equal(t, int64(2), ts.loader.Stats().Invalidated, "Fe-O and Fe-Li-O dropped, Li-O kept")

	d, err := ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.NoError(t, err)
	assert.Contains(t, d.StableEntries, "mp-353")

	_, err = ts.svc.PhaseDiagram(ctx, "Li-O", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ts.loader.Stats().Hits)
}

func TestService_UpsertMovingSystemInvalidatesBoth(t *testing.T) {
	ts := newTestService(t, lithiumIronOxides()...)
	ctx := context.Background()

	_, err := ts.svc.PhaseDiagram(ctx, "Li-O", false)
	require.NoError(t, err)
	_, err = ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.NoError(t, err)

	// mp-1960 moves from Li-O to Fe-O.
	resp, err := ts.svc.UpsertPhase(ctx, phase("mp-1960", "Fe3O4", -4.0))
	require.NoError(t, err)
	assert.Equal(t, []string{"Fe-O", "Li-O"}, resp.Invalidated)
	assert.Equal(t, int64(2), ts.loader.Stats().Invalidated)
}

func TestService_UpsertRejectsInvalid(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	_, err := ts.svc.UpsertPhase(ctx, store.Phase{PhaseID: "mp-1", Formula: "Xx2"})
	assert.ErrorIs(t, err, store.ErrInvalidPhase)

	_, err = ts.svc.UpsertPhase(ctx, store.Phase{Formula: "FeO"})
	assert.ErrorIs(t, err, store.ErrInvalidPhase)

	_, err = ts.svc.UpsertPhase(ctx, phase("mp-2", "LiNaKRbCsO", -1))
	assert.ErrorIs(t, err, store.ErrInvalidPhase)
	assert.Equal(t, 0, ts.store.Len())
}

func TestService_BoundaryErrors(t *testing.T) {
	ts := newTestService(t, ironOxides()...)
	ctx := context.Background()

	tests := []struct {
		name    string
		chemsys string
		want    error
	}{
		{"single element", "Fe", composition.ErrInvalidSystem},
		{"six elements", "Fe-O-Li-Mn-Co-Ni", composition.ErrInvalidSystem},
		{"unknown element", "Fe-Xx", composition.ErrInvalidSystem},
		{"empty", "", composition.ErrInvalidSystem},
		{"no data", "Li-Mn", ErrNoDataForSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.svc.PhaseDiagram(ctx, tt.chemsys, false)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(ts.metrics.RequestsTotal.WithLabelValues("phase_diagram", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RequestsTotal.WithLabelValues("phase_diagram", "not_found")))
}

func TestService_FailedLoadsNotCached(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	_, err := ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.ErrorIs(t, err, ErrNoDataForSystem)

	_, err = ts.svc.UpsertPhase(ctx, phase("mp-353", "FeO", -2.5))
	require.NoError(t, err)

	d, err := ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ref:Fe", "ref:O", "mp-353"}, d.StableEntries)
}

func TestService_WithoutCache(t *testing.T) {
	st, err := store.NewMemoryStore(ironOxides()...)
	require.NoError(t, err)
	svc := NewService(st, WithTolerance(0.5))

	d, err := svc.PhaseDiagram(context.Background(), "Fe-O", true)
	require.NoError(t, err)
	assert.NotEmpty(t, d.StableEntries)

	n, err := svc.Invalidate(context.Background(), "Fe-O")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok := svc.CacheStats()
	assert.False(t, ok)
}

func TestService_Hull(t *testing.T) {
	ts := newTestService(t, ironOxides()...)
	h, err := ts.svc.Hull(context.Background(), "Fe-O")
	require.NoError(t, err)
	assert.Equal(t, 3, h.NumStable)
}

func TestService_ListSystems(t *testing.T) {
	ts := newTestService(t, lithiumIronOxides()...)
	ctx := context.Background()

	systems, err := ts.svc.ListSystems(ctx, 0)
	require.NoError(t, err)
	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = s.Chemsys
	}
	assert.Equal(t, []string{"Fe", "Fe-Li-O", "Fe-O", "Li", "Li-O", "O"}, names)

	limited, err := ts.svc.ListSystems(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = ts.svc.ListSystems(ctx, MaxListLimit+1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_InvalidateSingleElement(t *testing.T) {
	ts := newTestService(t, ironOxides()...)
	ctx := context.Background()
	_, err := ts.svc.PhaseDiagram(ctx, "Fe-O", false)
	require.NoError(t, err)

	n, err := ts.svc.Invalidate(ctx, "O")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ts.svc.Invalidate(ctx, "Fe-Zz")
	assert.ErrorIs(t, err, composition.ErrInvalidSystem)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{composition.ErrInvalidSystem, http.StatusBadRequest, CodeInvalidChemsys},
		{ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
		{errors.Join(store.ErrInvalidPhase, composition.ErrInvalidSystem), http.StatusBadRequest, CodeInvalidRequest},
		{ErrNoDataForSystem, http.StatusNotFound, CodeNoData},
		{composition.ErrCompositionOutOfSystem, http.StatusUnprocessableEntity, CodeDataInconsistent},
		{hull.ErrDegenerateGeometry, http.StatusUnprocessableEntity, CodeDataInconsistent},
		{stability.ErrHullInvariantViolation, http.StatusInternalServerError, CodeInternal},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
		{context.Canceled, StatusClientClosedRequest, CodeCanceled},
		{fmt.Errorf("fetch phases: %w", context.Canceled), StatusClientClosedRequest, CodeCanceled},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := StatusOf(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, observability.OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, observability.OutcomeInvalid, outcomeOf(ErrInvalidRequest))
	assert.Equal(t, observability.OutcomeNotFound, outcomeOf(ErrNoDataForSystem))
	assert.Equal(t, observability.OutcomeInconsistent, outcomeOf(hull.ErrDegenerateGeometry))
	assert.Equal(t, observability.OutcomeCanceled, outcomeOf(context.Canceled))
	assert.Equal(t, observability.OutcomeError, outcomeOf(context.DeadlineExceeded))
}
