// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package composition

import (
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
)

// ReferencePrefix prefixes the identifier of a synthesized elemental
// reference, e.g. "ref:Fe".
const ReferencePrefix = "ref:"

// Point is one phase mapped into a Space.
type Point struct {
	// ID identifies the phase. Unique within one hull computation.
	ID string

	// Fractions holds atom fractions in the space's element order.
	// Sums to 1.
	Fractions []float64

	// Coords is the barycentric projection: Fractions without the last
	// element. Length is Space.Dim().
	Coords []float64

	// Energy is the formation energy per atom, passed through unchanged.
	Energy float64
}

// Space is the composition space of one chemical system.
type Space struct {
	system ChemicalSystem
}

// NewSpace returns the composition space of sys.
func NewSpace(sys ChemicalSystem) Space {
	return Space{system: sys}
}

// System returns the chemical system of the space.
func (s Space) System() ChemicalSystem { return s.system }

// Dim returns the dimension of the coordinate space, k-1.
func (s Space) Dim() int { return s.system.Len() - 1 }

// Map normalizes amounts into atom fractions and projects them onto the
// space's coordinates.
//
// Fails with ErrCompositionOutOfSystem when amounts names an element that
// is not part of the system, and with ErrInvalidComposition for empty or
// non-positive amounts and for a non-finite energy.
func (s Space) Map(id string, amounts formula.Amounts, energy float64) (Point, error) {
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return Point{}, fmt.Errorf("%w: phase %s has non-finite energy %v", ErrInvalidComposition, id, energy)
	}
	if len(amounts) == 0 {
		return Point{}, fmt.Errorf("%w: phase %s has an empty composition", ErrInvalidComposition, id)
	}

	fractions := make([]float64, s.system.Len())
	total := 0.0
	for _, el := range amounts.Elements() {
		n := amounts[el]
		idx := s.system.Index(el)
		if idx < 0 {
			return Point{}, fmt.Errorf("%w: phase %s contains %s, system is %s",
				ErrCompositionOutOfSystem, id, el, s.system)
		}
		if !(n > 0) || math.IsInf(n, 0) {
			return Point{}, fmt.Errorf("%w: phase %s has amount %v for %s", ErrInvalidComposition, id, n, el)
		}
		fractions[idx] = n
		total += n
	}
	for i := range fractions {
		fractions[i] /= total
	}

	return Point{
		ID:        id,
		Fractions: fractions,
		Coords:    append([]float64(nil), fractions[:len(fractions)-1]...),
		Energy:    energy,
	}, nil
}

// Reference returns the synthesized elemental reference for el: pure el at
// zero formation energy.
func (s Space) Reference(el string) (Point, error) {
	return s.Map(ReferenceID(el), formula.Amounts{el: 1}, 0)
}

// Composition returns the non-zero atom fractions of p keyed by element.
func (s Space) Composition(p Point) map[string]float64 {
	out := make(map[string]float64, len(p.Fractions))
	for i, f := range p.Fractions {
		if f > 0 {
			out[s.system.elements[i]] = f
		}
	}
	return out
}

// PureElement returns the element p consists of, if p is a pure-element
// composition.
func (s Space) PureElement(p Point) (string, bool) {
	for i, f := range p.Fractions {
		if f == 1 {
			return s.system.elements[i], true
		}
	}
	return "", false
}

// ReferenceID returns the identifier of the synthesized reference for el.
func ReferenceID(el string) string { return ReferencePrefix + el }
