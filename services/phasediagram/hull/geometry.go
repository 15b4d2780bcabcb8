// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hull

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// facet is a (d-1)-simplex on the boundary of a d-dimensional hull.
// normal is a unit outward normal; normal·p - offset is the signed distance
// of p from the facet's hyperplane, positive outside.
type facet struct {
	verts  []int
	normal []float64
	offset float64
}

func (f facet) distance(p []float64) float64 {
	return floats.Dot(f.normal, p) - f.offset
}

// affineFrame is an orthonormal basis of the affine span of a point set.
type affineFrame struct {
	origin []float64
	basis  [][]float64
}

// newAffineFrame runs Gram-Schmidt over pts[i]-pts[0] in order.
func newAffineFrame(pts [][]float64) affineFrame {
	frame := affineFrame{origin: append([]float64(nil), pts[0]...)}
	for _, p := range pts[1:] {
		v := make([]float64, len(p))
		floats.SubTo(v, p, frame.origin)
		residual := frame.residual(v)
		if n := floats.Norm(residual, 2); n > spanEpsilon {
			floats.Scale(1/n, residual)
			frame.basis = append(frame.basis, residual)
		}
	}
	return frame
}

func (f affineFrame) rank() int { return len(f.basis) }

// residual returns v minus its projection onto the basis.
func (f affineFrame) residual(v []float64) []float64 {
	out := append([]float64(nil), v...)
	for _, b := range f.basis {
		floats.AddScaled(out, -floats.Dot(b, out), b)
	}
	return out
}

// project returns the frame coordinates of x and the distance of x from
// the affine span.
func (f affineFrame) project(x []float64) ([]float64, float64) {
	v := make([]float64, len(x))
	floats.SubTo(v, x, f.origin)
	y := make([]float64, len(f.basis))
	for i, b := range f.basis {
		y[i] = floats.Dot(b, v)
	}
	return y, floats.Norm(f.residual(v), 2)
}

// newFacet builds the facet through verts, oriented so interior lies on
// the negative side. ok is false when the vertices are affinely dependent.
//
// The normal is the generalized cross product of the edge vectors:
// component j is (-1)^j times the determinant of the edge matrix with
// column j removed.
func newFacet(pts [][]float64, verts []int, interior []float64) (facet, bool) {
	d := len(pts[verts[0]])
	base := pts[verts[0]]

	edges := mat.NewDense(d-1, d, nil)
	scale := 1.0
	for i, v := range verts[1:] {
		row := make([]float64, d)
		floats.SubTo(row, pts[v], base)
		scale *= floats.Norm(row, 2)
		edges.SetRow(i, row)
	}

	normal := make([]float64, d)
	minor := mat.NewDense(d-1, d-1, nil)
	for j := 0; j < d; j++ {
		for r := 0; r < d-1; r++ {
			c := 0
			for k := 0; k < d; k++ {
				if k == j {
					continue
				}
				minor.Set(r, c, edges.At(r, k))
				c++
			}
		}
		det := mat.Det(minor)
		if j%2 == 1 {
			det = -det
		}
		normal[j] = det
	}

	n := floats.Norm(normal, 2)
	if scale == 0 || n <= 1e-12*scale {
		return facet{}, false
	}
	floats.Scale(1/n, normal)

	f := facet{
		verts:  append([]int(nil), verts...),
		normal: normal,
		offset: floats.Dot(normal, base),
	}
	if f.distance(interior) > 0 {
		floats.Scale(-1, f.normal)
		f.offset = -f.offset
	}
	return f, true
}

// initialSimplex picks d+1 affinely independent points, starting from
// first and greedily adding the point farthest from the current span.
func initialSimplex(pts [][]float64, first int) ([]int, error) {
	d := len(pts[first])
	chosen := []int{first}
	used := map[int]bool{first: true}
	frame := affineFrame{origin: pts[first]}

	for len(chosen) < d+1 {
		best, bestDist := -1, 0.0
		var bestResidual []float64
		for i, p := range pts {
			if used[i] {
				continue
			}
			v := make([]float64, d)
			floats.SubTo(v, p, frame.origin)
			res := frame.residual(v)
			if dist := floats.Norm(res, 2); dist > bestDist {
				best, bestDist, bestResidual = i, dist, res
			}
		}
		if best < 0 || bestDist <= spanEpsilon {
			return nil, fmt.Errorf("%w: lifted points span only %d of %d dimensions",
				ErrDegenerateGeometry, len(chosen)-1, d)
		}
		floats.Scale(1/bestDist, bestResidual)
		frame.basis = append(frame.basis, bestResidual)
		chosen = append(chosen, best)
		used[best] = true
	}
	return chosen, nil
}

// convexHull computes the full convex hull of pts, which must span all of
// their dimensions, by incremental beneath-beyond insertion. Points are
// inserted in index order after the initial simplex, so the result is
// deterministic for a given input order.
func convexHull(pts [][]float64, first int) ([]facet, error) {
	d := len(pts[0])
	simplex, err := initialSimplex(pts, first)
	if err != nil {
		return nil, err
	}

	interior := make([]float64, d)
	for _, v := range simplex {
		floats.Add(interior, pts[v])
	}
	floats.Scale(1/float64(len(simplex)), interior)

	facets := make([]facet, 0, 2*(d+1))
	for skip := range simplex {
		verts := make([]int, 0, d)
		for i, v := range simplex {
			if i != skip {
				verts = append(verts, v)
			}
		}
		f, ok := newFacet(pts, verts, interior)
		if !ok {
			return nil, fmt.Errorf("%w: initial simplex is flat", ErrDegenerateGeometry)
		}
		facets = append(facets, f)
	}

	inSimplex := make(map[int]bool, len(simplex))
	for _, v := range simplex {
		inSimplex[v] = true
	}

	for i, p := range pts {
		if inSimplex[i] {
			continue
		}

		var visible, kept []facet
		for _, f := range facets {
			if f.distance(p) > visibilityEpsilon {
				visible = append(visible, f)
			} else {
				kept = append(kept, f)
			}
		}
		if len(visible) == 0 {
			continue
		}

		for _, ridge := range horizon(visible) {
			verts := append(append([]int(nil), ridge...), i)
			f, ok := newFacet(pts, verts, interior)
			if !ok {
				return nil, fmt.Errorf("%w: point %d is coplanar with its horizon", ErrDegenerateGeometry, i)
			}
			kept = append(kept, f)
		}
		facets = kept
	}
	return facets, nil
}

// horizon returns the ridges that belong to exactly one visible facet, in
// order of first appearance.
func horizon(visible []facet) [][]int {
	type entry struct {
		ridge []int
		count int
	}
	var order []string
	seen := make(map[string]*entry)

	for _, f := range visible {
		for skip := range f.verts {
			ridge := make([]int, 0, len(f.verts)-1)
			for i, v := range f.verts {
				if i != skip {
					ridge = append(ridge, v)
				}
			}
			key := ridgeKey(ridge)
			if e, ok := seen[key]; ok {
				e.count++
				continue
			}
			seen[key] = &entry{ridge: ridge, count: 1}
			order = append(order, key)
		}
	}

	out := make([][]int, 0, len(order))
	for _, key := range order {
		if e := seen[key]; e.count == 1 {
			out = append(out, e.ridge)
		}
	}
	return out
}

func ridgeKey(ridge []int) string {
	sorted := append([]int(nil), ridge...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// lowerFacet is a downward-facing facet projected onto composition space,
// ready for barycentric interpolation.
type lowerFacet struct {
	verts    []int
	origin   []float64
	energies []float64
	inverse  *mat.Dense // inverse of the matrix with columns y_i - y_0
}

func newLowerFacet(ys [][]float64, energies []float64, verts []int) (lowerFacet, bool) {
	r := len(ys[verts[0]])
	m := mat.NewDense(r, r, nil)
	for c, v := range verts[1:] {
		for row := 0; row < r; row++ {
			m.Set(row, c, ys[v][row]-ys[verts[0]][row])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return lowerFacet{}, false
	}

	es := make([]float64, len(verts))
	for i, v := range verts {
		es[i] = energies[v]
	}
	return lowerFacet{
		verts:    append([]int(nil), verts...),
		origin:   ys[verts[0]],
		energies: es,
		inverse:  &inv,
	}, true
}

// interpolate returns the facet's energy at y and whether y lies inside
// the facet within barycentricEpsilon.
func (f lowerFacet) interpolate(y []float64) (float64, bool) {
	r := len(y)
	d := make([]float64, r)
	floats.SubTo(d, y, f.origin)

	var lambda mat.VecDense
	lambda.MulVec(f.inverse, mat.NewVecDense(r, d))

	l0 := 1.0
	energy := 0.0
	for i := 0; i < r; i++ {
		li := lambda.AtVec(i)
		if li < -barycentricEpsilon || math.IsNaN(li) {
			return 0, false
		}
		l0 -= li
		energy += li * f.energies[i+1]
	}
	if l0 < -barycentricEpsilon {
		return 0, false
	}
	return energy + l0*f.energies[0], true
}
