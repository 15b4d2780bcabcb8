// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// integerTolerance decides when a count is treated as a whole number for
// reduction and formatting.
const integerTolerance = 1e-8

// Amounts maps element symbols to positive stoichiometric counts.
type Amounts map[string]float64

// FromMap validates a structured composition (for example rows of a
// compositions table) and returns it as Amounts.
//
// This is the counting path used when the data source does not supply a
// formula string. Zero entries are dropped; negative, NaN or infinite counts
// and unknown symbols wrap ErrMalformedFormula.
func FromMap(m map[string]float64) (Amounts, error) {
	out := make(Amounts, len(m))
	for el, n := range m {
		if !IsElement(el) {
			return nil, fmt.Errorf("%w: %w %q in composition", ErrMalformedFormula, ErrUnknownElement, el)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return nil, fmt.Errorf("%w: invalid amount %v for %s", ErrMalformedFormula, n, el)
		}
		if n == 0 {
			continue
		}
		out[el] = n
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty composition", ErrMalformedFormula)
	}
	return out, nil
}

// Elements returns the element symbols sorted lexicographically.
func (a Amounts) Elements() []string {
	els := make([]string, 0, len(a))
	for el := range a {
		els = append(els, el)
	}
	sort.Strings(els)
	return els
}

// Total returns the number of atoms in the formula unit.
// Summation follows sorted element order so results are reproducible.
func (a Amounts) Total() float64 {
	var total float64
	for _, el := range a.Elements() {
		total += a[el]
	}
	return total
}

// Fractions returns the atom fraction of each element. The fractions sum to
// one up to floating-point rounding.
func (a Amounts) Fractions() Amounts {
	total := a.Total()
	out := make(Amounts, len(a))
	if total == 0 {
		return out
	}
	for el, n := range a {
		out[el] = n / total
	}
	return out
}

// Clone returns an independent copy.
func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	for el, n := range a {
		out[el] = n
	}
	return out
}

// Reduced divides whole-number amounts by their greatest common divisor.
//
// Fe4O6 reduces to Fe2O3 with factor 2. Formulas with fractional counts are
// returned unchanged with factor 1.
func (a Amounts) Reduced() (Amounts, float64) {
	var g int64
	for _, n := range a {
		r := math.Round(n)
		if math.Abs(n-r) > integerTolerance || r < 1 {
			return a.Clone(), 1
		}
		g = gcd(g, int64(r))
	}
	if g <= 1 {
		return a.Clone(), 1
	}

	out := make(Amounts, len(a))
	for el, n := range a {
		out[el] = math.Round(n) / float64(g)
	}
	return out, float64(g)
}

// String renders the formula with elements in lexicographic order and unit
// counts omitted, e.g. "Fe2O3" or "CoLi0.5O2".
func (a Amounts) String() string {
	var b strings.Builder
	for _, el := range a.Elements() {
		b.WriteString(el)
		if n := a[el]; math.Abs(n-1) > integerTolerance {
			b.WriteString(FormatCount(n))
		}
	}
	return b.String()
}

// ReducedString is the String of the reduced formula.
func (a Amounts) ReducedString() string {
	r, _ := a.Reduced()
	return r.String()
}

// FormatCount formats a count the way it appears in a formula: whole numbers
// without a decimal point, everything else in shortest form.
func FormatCount(n float64) string {
	if r := math.Round(n); math.Abs(n-r) <= integerTolerance {
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func (a Amounts) add(other Amounts, scale float64) {
	for el, n := range other {
		a[el] += n * scale
	}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
