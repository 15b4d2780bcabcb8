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

const (
	// DefaultTolerance is the on-hull tolerance in eV/atom (1 meV/atom).
	// A representative point within this distance of the lower hull is a
	// vertex.
	DefaultTolerance = 0.001

	// CoincidenceTolerance is the largest per-coordinate difference at
	// which two compositions are treated as the same composition.
	CoincidenceTolerance = 1e-9

	// EnergyEpsilon is the floating-point slack added to the on-hull
	// tolerance. Interpolated hull energies carry a few ULP of error, so
	// a zero tolerance still admits points this close to the hull.
	EnergyEpsilon = 1e-9
)

// Numerical thresholds for the geometry. These are not tunable.
const (
	// visibilityEpsilon is the distance beyond a facet at which a point
	// sees it.
	visibilityEpsilon = 1e-9

	// lowerNormalEpsilon is how negative the energy component of a unit
	// facet normal must be for the facet to face down.
	lowerNormalEpsilon = 1e-9

	// spanEpsilon bounds Gram-Schmidt residuals and off-span queries.
	spanEpsilon = 1e-9

	// barycentricEpsilon is how far outside a facet a query may fall
	// while still being interpolated by it.
	barycentricEpsilon = 1e-9
)

// Options configures Build.
type Options struct {
	// Tolerance is the on-hull tolerance in energy units per atom.
	Tolerance float64
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the options Build uses when none are given.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance}
}

// WithTolerance sets the on-hull tolerance. It must be non-negative and
// finite.
func WithTolerance(tol float64) Option {
	return func(o *Options) {
		o.Tolerance = tol
	}
}
