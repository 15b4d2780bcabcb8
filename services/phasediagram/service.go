// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phasediagram assembles phase diagrams from stored phases and
// serves them over HTTP.
//
// # Description
//
// Compute is the pure assembly step: it maps phases into composition
// space, synthesizes missing elemental references, builds the lower hull
// and classifies every phase. Service wraps Compute with the store fetch,
// the diagram cache, tracing and metrics. Handlers expose Service through
// gin.
//
// # Data Flow
//
//	GET /v1/phase-diagram/Fe-O
//	   │
//	   ▼
//	Service.PhaseDiagram ──► cache.Loader ──hit──► cached JSON
//	   │ miss
//	   ▼
//	store.PhasesInSystems(Fe, O, Fe-O)
//	   │
//	   ▼
//	Compute ──► hull.Build ──► stability.Evaluate
//
// # Thread Safety
//
// Service is safe for concurrent use. Compute touches no shared state.
package phasediagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/cache"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/observability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/stability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

var tracer = otel.Tracer("aleutian.materials.phasediagram")

// Limits for ListSystems.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Service serves phase diagrams.
type Service struct {
	store     store.Store
	loader    *cache.Loader
	metrics   *observability.Metrics
	logger    *slog.Logger
	tolerance float64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache serves diagrams through loader. Without it every request
// recomputes.
func WithCache(loader *cache.Loader) ServiceOption {
	return func(s *Service) { s.loader = loader }
}

// WithMetrics records request and compute metrics.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTolerance sets the on-hull tolerance in eV/atom.
func WithTolerance(tol float64) ServiceOption {
	return func(s *Service) { s.tolerance = tol }
}

// NewService returns a Service reading from st.
func NewService(st store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     st,
		logger:    slog.Default(),
		tolerance: stability.DefaultTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PhaseDiagram returns the diagram of chemsys.
//
// # Inputs
//
//	ctx             - Bounds the store fetch. The computation itself is
//	                  not interrupted.
//	chemsys         - Two to five element symbols joined by "-", any order.
//	includeUnstable - Keep phases above the hull.
//
// # Outputs
//
//	*Diagram - The assembled diagram.
//	error    - composition.ErrInvalidSystem, ErrNoDataForSystem, or a
//	           wrapped store, composition, hull or stability error.
func (s *Service) PhaseDiagram(ctx context.Context, chemsys string, includeUnstable bool) (*Diagram, error) {
	ctx, span := tracer.Start(ctx, "Service.PhaseDiagram")
	defer span.End()

	d, err := s.phaseDiagram(ctx, span, chemsys, includeUnstable)
	s.finish(span, observability.OpPhaseDiagram, err)
	return d, err
}

func (s *Service) phaseDiagram(ctx context.Context, span trace.Span, chemsys string, includeUnstable bool) (*Diagram, error) {
	sys, err := composition.ParseBounded(chemsys)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("chemsys", sys.String()),
		attribute.Bool("include_unstable", includeUnstable),
	)

	if s.loader == nil {
		return s.compute(ctx, sys, includeUnstable)
	}

	key := cache.Key{Chemsys: sys.String(), IncludeUnstable: includeUnstable}
	raw, hit, err := s.loader.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		d, err := s.compute(ctx, sys, includeUnstable)
		if err != nil {
			return nil, err
		}
		return json.Marshal(d)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))

	var d Diagram
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode cached diagram %s: %w", key, err)
	}
	return &d, nil
}

func (s *Service) compute(ctx context.Context, sys composition.ChemicalSystem, includeUnstable bool) (*Diagram, error) {
	phases, err := s.store.PhasesInSystems(ctx, sys.SubsystemNames())
	if err != nil {
		return nil, fmt.Errorf("fetch phases for %s: %w", sys, err)
	}

	start := time.Now()
	comp, err := Compute(sys, phases, ComputeOptions{
		IncludeUnstable: includeUnstable,
		Tolerance:       s.tolerance,
	})
	if errors.Is(err, stability.ErrHullInvariantViolation) {
		s.metrics.RecordInvariantViolation()
		s.logger.Error("hull invariant violated",
			"chemsys", sys.String(),
			"tolerance", s.tolerance,
			"phase_count", len(phases),
			"phases", dumpPhases(phases),
			"error", err,
		)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCompute(sys.Len(), len(comp.Points), time.Since(start).Seconds())

	s.logger.Debug("phase diagram computed",
		"chemsys", sys.String(),
		"phase_count", len(phases),
		"stable_count", len(comp.Diagram.StableEntries),
		"duration", time.Since(start),
	)
	return &comp.Diagram, nil
}

// Hull returns the stable phases of chemsys formatted for plotting.
func (s *Service) Hull(ctx context.Context, chemsys string) (*HullResponse, error) {
	ctx, span := tracer.Start(ctx, "Service.Hull")
	defer span.End()

	d, err := s.phaseDiagram(ctx, span, chemsys, false)
	s.finish(span, observability.OpHull, err)
	if err != nil {
		return nil, err
	}
	h := d.Hull()
	return &h, nil
}

// ListSystems returns up to limit chemical systems with data. A zero
// limit means DefaultListLimit.
func (s *Service) ListSystems(ctx context.Context, limit int) ([]store.SystemSummary, error) {
	ctx, span := tracer.Start(ctx, "Service.ListSystems")
	defer span.End()

	if limit == 0 {
		limit = DefaultListLimit
	}
	var (
		out []store.SystemSummary
		err error
	)
	if limit < 0 || limit > MaxListLimit {
		err = fmt.Errorf("%w: limit %d outside 1..%d", ErrInvalidRequest, limit, MaxListLimit)
	} else {
		out, err = s.store.ListSystems(ctx, limit)
	}
	s.finish(span, observability.OpListSystems, err)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.SystemSummary{}
	}
	return out, nil
}

// Invalidate drops the cached diagrams of chemsys and of every system
// containing it. Single-element systems are accepted.
func (s *Service) Invalidate(ctx context.Context, chemsys string) (int, error) {
	ctx, span := tracer.Start(ctx, "Service.Invalidate")
	defer span.End()

	n, err := s.invalidate(ctx, chemsys)
	s.finish(span, observability.OpInvalidate, err)
	return n, err
}

func (s *Service) invalidate(ctx context.Context, chemsys string) (int, error) {
	sys, err := composition.ParseChemicalSystem(chemsys)
	if err != nil {
		return 0, err
	}
	if err := sys.CheckSize(1, composition.MaxSystemSize); err != nil {
		return 0, err
	}
	if s.loader == nil {
		return 0, nil
	}
	return s.loader.Invalidate(ctx, sys)
}

// UpsertPhase writes phase and invalidates the cached diagrams its old
// and new chemical systems take part in. Invalidation failures are
// logged; the write stands and stale entries expire with their TTL.
func (s *Service) UpsertPhase(ctx context.Context, phase store.Phase) (*UpsertMaterialResponse, error) {
	ctx, span := tracer.Start(ctx, "Service.UpsertPhase")
	defer span.End()

	resp, err := s.upsert(ctx, phase)
	s.finish(span, observability.OpUpsert, err)
	return resp, err
}

func (s *Service) upsert(ctx context.Context, phase store.Phase) (*UpsertMaterialResponse, error) {
	phase, err := phase.Normalize()
	if err != nil {
		return nil, err
	}
	sys, err := composition.ParseChemicalSystem(phase.Chemsys)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrInvalidPhase, phase.PhaseID, err)
	}
	if err := sys.CheckSize(1, composition.MaxSystemSize); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrInvalidPhase, phase.PhaseID, err)
	}

	res, err := s.store.UpsertPhase(ctx, phase)
	if err != nil {
		return nil, err
	}

	systems := []string{res.Phase.Chemsys}
	if res.PreviousChemsys != "" && res.PreviousChemsys != res.Phase.Chemsys {
		systems = append(systems, res.PreviousChemsys)
	}
	for _, cs := range systems {
		if _, err := s.invalidate(ctx, cs); err != nil {
			s.logger.Error("cache invalidation after write failed",
				"material_id", res.Phase.PhaseID,
				"chemsys", cs,
				"error", err,
			)
		}
	}

	s.logger.Info("material upserted",
		"material_id", res.Phase.PhaseID,
		"chemsys", res.Phase.Chemsys,
		"previous_chemsys", res.PreviousChemsys,
	)
	return &UpsertMaterialResponse{
		MaterialID:  res.Phase.PhaseID,
		Formula:     res.Phase.Formula,
		Chemsys:     res.Phase.Chemsys,
		Invalidated: systems,
	}, nil
}

// CacheStats returns the cache counters, if a cache is configured.
func (s *Service) CacheStats() (cache.Stats, bool) {
	if s.loader == nil {
		return cache.Stats{}, false
	}
	return s.loader.Stats(), true
}

// Close releases the store and the cache.
func (s *Service) Close() error {
	var errs []error
	if s.loader != nil {
		errs = append(errs, s.loader.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

func (s *Service) finish(span trace.Span, op observability.Operation, err error) {
	s.metrics.RecordRequest(op, outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcomeOf(err)))
	}
}

// dumpPhases renders phases as "id formula energy" for diagnostics.
func dumpPhases(phases []store.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		e := "nil"
		if p.FormationEnergyPerAtom != nil {
			e = strconv.FormatFloat(*p.FormationEnergyPerAtom, 'g', -1, 64)
		}
		out[i] = fmt.Sprintf("%s %s %v %s", p.PhaseID, p.Formula, p.Composition, e)
	}
	return out
}
