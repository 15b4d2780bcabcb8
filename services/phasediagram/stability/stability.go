// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stability classifies phases against a lower hull.
package stability

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/hull"
)

// DefaultTolerance is the stability tolerance in eV/atom.
const DefaultTolerance = hull.DefaultTolerance

// ErrHullInvariantViolation means a phase lies below the hull by more than
// the tolerance, or the stable set disagrees with the hull's vertices.
// It indicates a bug in hull construction, never bad input.
var ErrHullInvariantViolation = errors.New("hull invariant violation")

// Surface is the part of a hull the evaluator reads.
// *hull.Hull implements it.
type Surface interface {
	EnergyAt(coords []float64) (float64, error)
	IsVertex(id string) bool
	ShadowedBy(id string) (string, bool)
}

// Result is the stability of one phase.
type Result struct {
	ID string

	// EnergyAboveHull is >= 0. Values within the tolerance below zero,
	// and round-off above it, are clamped to 0.
	EnergyAboveHull float64

	IsStable bool

	// ShadowedBy names the phase that replaced this one at a shared
	// composition, if any.
	ShadowedBy string
}

// Evaluate computes energy above hull for every point, in input order.
//
// # Inputs
//
//	surface   - The lower hull, normally built from the same points with
//	            the same tolerance.
//	points    - Phases to classify.
//	tolerance - On-hull tolerance; must match the hull's.
//
// # Outputs
//
//	[]Result - One result per point.
//	error    - ErrHullInvariantViolation when a point lies more than the
//	           tolerance plus hull.EnergyEpsilon below the hull or the
//	           stable set is not the vertex set. Errors from
//	           surface.EnergyAt are wrapped as-is.
func Evaluate(surface Surface, points []composition.Point, tolerance float64) ([]Result, error) {
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("stability tolerance %v must be non-negative", tolerance)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		hullEnergy, err := surface.EnergyAt(p.Coords)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", p.ID, err)
		}

		slack := tolerance + hull.EnergyEpsilon
		e := p.Energy - hullEnergy
		if e < -slack {
			return nil, fmt.Errorf("%w: phase %s is %.6g eV/atom below the hull",
				ErrHullInvariantViolation, p.ID, -e)
		}
		if e <= hull.EnergyEpsilon {
			e = 0
		}

		r := Result{ID: p.ID, EnergyAboveHull: e}
		rep, shadowed := surface.ShadowedBy(p.ID)
		if shadowed {
			r.ShadowedBy = rep
		}
		r.IsStable = e <= slack && !shadowed

		if r.IsStable != surface.IsVertex(p.ID) {
			return nil, fmt.Errorf("%w: phase %s stable=%t but vertex=%t (e_above_hull %.6g)",
				ErrHullInvariantViolation, p.ID, r.IsStable, !r.IsStable, e)
		}
		results = append(results, r)
	}
	return results, nil
}

// StableIDs returns the IDs of stable results in order.
func StableIDs(results []Result) []string {
	var ids []string
	for _, r := range results {
		if r.IsStable {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
