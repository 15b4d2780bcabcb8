// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hull builds the lower convex hull of formation energy over
// composition space.
//
// # Description
//
// Points from a composition.Space are lifted into (coordinates, energy)
// space. Coincident compositions are collapsed to one representative, the
// representatives are projected onto the affine subspace they actually
// span, and a full convex hull is computed there with an incremental
// beneath-beyond algorithm. An apex point placed high above the centroid
// keeps the lifted set full-dimensional even when every energy is equal;
// it never lies on a downward-facing facet.
//
// The downward-facing facets define EnergyAt, a piecewise-linear function
// over the convex span of the input compositions.
//
// # Tie-break
//
// Among points whose compositions agree within CoincidenceTolerance, the
// one with the lowest energy is the representative; equal energies fall
// back to the lexicographically smallest ID. Other points in the group are
// shadowed: they are never vertices.
//
// # Thread Safety
//
// Build allocates all state per call. A built Hull is immutable and safe
// for concurrent use.
package hull

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
)

// Hull is a lower convex hull over one set of points.
type Hull struct {
	dim       int
	tolerance float64

	points    []composition.Point // canonical order
	reps      []int               // indices into points, canonical order
	shadowed  map[string]string   // shadowed ID -> representative ID
	frame     affineFrame
	reduced   [][]float64 // frame coordinates of each representative
	energies  []float64   // energy of each representative
	facets    []lowerFacet
	vertices  []string
	vertexSet map[string]bool
}

// Build computes the lower hull of points.
//
// # Inputs
//
//	points - Mapped phases. All must share one coordinate dimension d and
//	         carry unique IDs. At least d+1 points are required.
//	opts   - Optional settings, see WithTolerance.
//
// # Outputs
//
//	*Hull - The hull. Vertices are representatives within the tolerance
//	        of the lower hull.
//	error - ErrInsufficientPoints, ErrInvalidInput or ErrDegenerateGeometry.
func Build(points []composition.Point, opts ...Option) (*Hull, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Tolerance < 0 || math.IsNaN(options.Tolerance) || math.IsInf(options.Tolerance, 0) {
		return nil, fmt.Errorf("%w: tolerance %v", ErrInvalidInput, options.Tolerance)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInsufficientPoints)
	}

	dim := len(points[0].Coords)
	if err := validate(points, dim); err != nil {
		return nil, err
	}
	if len(points) < dim+1 {
		return nil, fmt.Errorf("%w: %d point(s) for a %d-element system",
			ErrInsufficientPoints, len(points), dim+1)
	}

	h := &Hull{
		dim:       dim,
		tolerance: options.Tolerance,
		points:    canonicalOrder(points),
		shadowed:  make(map[string]string),
		vertexSet: make(map[string]bool),
	}
	h.groupCoincident()

	repCoords := make([][]float64, len(h.reps))
	h.energies = make([]float64, len(h.reps))
	for i, idx := range h.reps {
		repCoords[i] = h.points[idx].Coords
		h.energies[i] = h.points[idx].Energy
	}
	h.frame = newAffineFrame(repCoords)
	h.reduced = make([][]float64, len(h.reps))
	for i, c := range repCoords {
		h.reduced[i], _ = h.frame.project(c)
	}

	if h.frame.rank() > 0 {
		if err := h.buildLowerFacets(); err != nil {
			return nil, err
		}
	}
	if err := h.collectVertices(); err != nil {
		return nil, err
	}
	return h, nil
}

func validate(points []composition.Point, dim int) error {
	ids := make(map[string]struct{}, len(points))
	for _, p := range points {
		if len(p.Coords) != dim {
			return fmt.Errorf("%w: point %s has %d coordinates, expected %d",
				ErrInvalidInput, p.ID, len(p.Coords), dim)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: duplicate point id %s", ErrInvalidInput, p.ID)
		}
		ids[p.ID] = struct{}{}
		if !finite(p.Energy) {
			return fmt.Errorf("%w: point %s has energy %v", ErrInvalidInput, p.ID, p.Energy)
		}
		for _, c := range p.Coords {
			if !finite(c) {
				return fmt.Errorf("%w: point %s has coordinate %v", ErrInvalidInput, p.ID, c)
			}
		}
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// canonicalOrder returns a copy sorted by coordinates, energy, then ID.
func canonicalOrder(points []composition.Point) []composition.Point {
	out := append([]composition.Point(nil), points...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for k := range a.Coords {
			if a.Coords[k] != b.Coords[k] {
				return a.Coords[k] < b.Coords[k]
			}
		}
		if a.Energy != b.Energy {
			return a.Energy < b.Energy
		}
		return a.ID < b.ID
	})
	return out
}

// groupCoincident fills reps and shadowed.
func (h *Hull) groupCoincident() {
	var groups [][]int
	for i, p := range h.points {
		placed := false
		for g, members := range groups {
			if coincident(h.points[members[0]].Coords, p.Coords) {
				groups[g] = append(members, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}

	for _, members := range groups {
		best := members[0]
		for _, m := range members[1:] {
			if preferred(h.points[m], h.points[best]) {
				best = m
			}
		}
		h.reps = append(h.reps, best)
		for _, m := range members {
			if m != best {
				h.shadowed[h.points[m].ID] = h.points[best].ID
			}
		}
	}
	sort.Ints(h.reps)
}

func coincident(a, b []float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > CoincidenceTolerance {
			return false
		}
	}
	return true
}

// preferred reports whether a wins the tie-break over b.
func preferred(a, b composition.Point) bool {
	if a.Energy != b.Energy {
		return a.Energy < b.Energy
	}
	return a.ID < b.ID
}

// buildLowerFacets lifts the reduced representatives, adds the apex and
// keeps the downward-facing facets of the full hull.
func (h *Hull) buildLowerFacets() error {
	r := h.frame.rank()
	n := len(h.reps)

	minE, maxE := h.energies[0], h.energies[0]
	centroid := make([]float64, r)
	for i, y := range h.reduced {
		for k := range y {
			centroid[k] += y[k]
		}
		minE = math.Min(minE, h.energies[i])
		maxE = math.Max(maxE, h.energies[i])
	}
	for k := range centroid {
		centroid[k] /= float64(n)
	}

	lifted := make([][]float64, n+1)
	for i, y := range h.reduced {
		lifted[i] = append(append(make([]float64, 0, r+1), y...), h.energies[i])
	}
	apex := n
	lifted[apex] = append(centroid, maxE+(maxE-minE)+1)

	facets, err := convexHull(lifted, apex)
	if err != nil {
		return fmt.Errorf("reduced hull in %d dimension(s): %w", r+1, err)
	}

	for _, f := range facets {
		if f.normal[r] >= -lowerNormalEpsilon || containsIndex(f.verts, apex) {
			continue
		}
		lf, ok := newLowerFacet(h.reduced, h.energies, f.verts)
		if !ok {
			continue
		}
		h.facets = append(h.facets, lf)
	}
	if len(h.facets) == 0 {
		return fmt.Errorf("%w: no downward-facing facets", ErrDegenerateGeometry)
	}
	return nil
}

func (h *Hull) collectVertices() error {
	for _, idx := range h.reps {
		p := h.points[idx]
		e, err := h.EnergyAt(p.Coords)
		if err != nil {
			return fmt.Errorf("%w: representative %s: %v", ErrDegenerateGeometry, p.ID, err)
		}
		if p.Energy-e <= h.tolerance+EnergyEpsilon {
			h.vertices = append(h.vertices, p.ID)
			h.vertexSet[p.ID] = true
		}
	}
	return nil
}

// EnergyAt returns the lower hull's energy at a composition coordinate.
//
// Fails with ErrCompositionOutsideHullSpan when coords lies off the affine
// span of the hull's compositions or outside their convex span.
func (h *Hull) EnergyAt(coords []float64) (float64, error) {
	if len(coords) != h.dim {
		return 0, fmt.Errorf("%w: %d coordinates, expected %d", ErrInvalidInput, len(coords), h.dim)
	}
	y, offSpan := h.frame.project(coords)
	if offSpan > spanEpsilon {
		return 0, fmt.Errorf("%w: %v is %.3g off the span of the hull",
			ErrCompositionOutsideHullSpan, coords, offSpan)
	}
	if h.frame.rank() == 0 {
		return h.energies[0], nil
	}

	best, found := math.Inf(-1), false
	for _, f := range h.facets {
		if e, ok := f.interpolate(y); ok && e > best {
			best, found = e, true
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %v lies outside the convex span", ErrCompositionOutsideHullSpan, coords)
	}
	return best, nil
}

// Vertices returns the IDs of the hull vertices in canonical order.
func (h *Hull) Vertices() []string {
	return append([]string(nil), h.vertices...)
}

// IsVertex reports whether id is a hull vertex.
func (h *Hull) IsVertex(id string) bool { return h.vertexSet[id] }

// ShadowedBy returns the representative that replaced id when id shares
// its composition with a preferred point.
func (h *Hull) ShadowedBy(id string) (string, bool) {
	rep, ok := h.shadowed[id]
	return rep, ok
}

// Facets returns the vertex IDs of every downward-facing facet, each
// sorted, in construction order.
func (h *Hull) Facets() [][]string {
	out := make([][]string, 0, len(h.facets))
	for _, f := range h.facets {
		ids := make([]string, len(f.verts))
		for i, v := range f.verts {
			ids[i] = h.points[h.reps[v]].ID
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	return out
}

// Dim returns the dimension of the composition coordinates.
func (h *Hull) Dim() int { return h.dim }

// Rank returns the dimension of the affine span of the compositions.
// Rank below Dim means the hull was built in a reduced subspace.
func (h *Hull) Rank() int { return h.frame.rank() }

// Tolerance returns the on-hull tolerance.
func (h *Hull) Tolerance() float64 { return h.tolerance }

// Points returns the input points in canonical order.
func (h *Hull) Points() []composition.Point {
	return append([]composition.Point(nil), h.points...)
}

func containsIndex(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
