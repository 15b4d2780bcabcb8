// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package composition models chemical systems and maps compositions into
// the barycentric coordinate space used for hull construction.
//
// # Chemical Systems
//
// A ChemicalSystem is an immutable, deduplicated, lexicographically sorted
// set of element symbols rendered as "Fe-O" or "Fe-Li-O". A system of size k
// has exactly 2^k-1 non-empty subsystems, each itself a ChemicalSystem.
//
// # Composition Space
//
// A Space fixes the element order of one system. Mapping a composition
// yields atom fractions in that order and a (k-1)-dimensional coordinate
// made of the first k-1 fractions; the last fraction is implied because the
// fractions sum to one.
//
// # Thread Safety
//
// ChemicalSystem and Space are immutable after construction and safe for
// concurrent use.
package composition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
)

// Boundary limits on system size. The geometry accepts any size; callers
// facing users enforce these.
const (
	MinSystemSize = 2
	MaxSystemSize = 5
)

// Separator joins element symbols in the canonical system name.
const Separator = "-"

// ChemicalSystem is a sorted, deduplicated set of element symbols.
type ChemicalSystem struct {
	elements []string
}

// NewChemicalSystem builds a system from element symbols in any order.
// Duplicates are removed. Unknown symbols and an empty set wrap
// ErrInvalidSystem.
func NewChemicalSystem(elements ...string) (ChemicalSystem, error) {
	seen := make(map[string]struct{}, len(elements))
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		if !formula.IsElement(el) {
			return ChemicalSystem{}, fmt.Errorf("%w: unknown element %q", ErrInvalidSystem, el)
		}
		if _, dup := seen[el]; dup {
			continue
		}
		seen[el] = struct{}{}
		out = append(out, el)
	}
	if len(out) == 0 {
		return ChemicalSystem{}, fmt.Errorf("%w: no elements", ErrInvalidSystem)
	}
	sort.Strings(out)
	return ChemicalSystem{elements: out}, nil
}

// ParseChemicalSystem parses a separator-joined system string such as
// "O-Fe" or "Li-Fe-O". Whitespace around symbols is trimmed; order and
// duplicates do not matter.
func ParseChemicalSystem(s string) (ChemicalSystem, error) {
	parts := strings.Split(s, Separator)
	elements := make([]string, 0, len(parts))
	for _, p := range parts {
		el := strings.TrimSpace(p)
		if el == "" {
			return ChemicalSystem{}, fmt.Errorf("%w: empty element in %q", ErrInvalidSystem, s)
		}
		elements = append(elements, el)
	}
	return NewChemicalSystem(elements...)
}

// ParseBounded parses s and enforces MinSystemSize..MaxSystemSize.
func ParseBounded(s string) (ChemicalSystem, error) {
	sys, err := ParseChemicalSystem(s)
	if err != nil {
		return ChemicalSystem{}, err
	}
	if err := sys.CheckSize(MinSystemSize, MaxSystemSize); err != nil {
		return ChemicalSystem{}, err
	}
	return sys, nil
}

// SystemOf returns the chemical system spanned by the elements of a
// composition.
func SystemOf(amounts formula.Amounts) (ChemicalSystem, error) {
	return NewChemicalSystem(amounts.Elements()...)
}

// CheckSize wraps ErrInvalidSystem when the system size is outside
// [min, max].
func (s ChemicalSystem) CheckSize(min, max int) error {
	n := len(s.elements)
	if n < min {
		return fmt.Errorf("%w: %s has %d element(s), at least %d required", ErrInvalidSystem, s, n, min)
	}
	if n > max {
		return fmt.Errorf("%w: %s has %d elements, at most %d allowed", ErrInvalidSystem, s, n, max)
	}
	return nil
}

// Elements returns a copy of the sorted element symbols.
func (s ChemicalSystem) Elements() []string {
	return append([]string(nil), s.elements...)
}

// Len returns the number of elements.
func (s ChemicalSystem) Len() int { return len(s.elements) }

// IsZero reports whether s is the zero value.
func (s ChemicalSystem) IsZero() bool { return len(s.elements) == 0 }

// String returns the canonical name, e.g. "Fe-O".
func (s ChemicalSystem) String() string {
	return strings.Join(s.elements, Separator)
}

// Index returns the position of el in the canonical order, or -1.
func (s ChemicalSystem) Index(el string) int {
	i := sort.SearchStrings(s.elements, el)
	if i < len(s.elements) && s.elements[i] == el {
		return i
	}
	return -1
}

// Contains reports whether el is part of the system.
func (s ChemicalSystem) Contains(el string) bool { return s.Index(el) >= 0 }

// Covers reports whether every element of amounts belongs to the system.
func (s ChemicalSystem) Covers(amounts formula.Amounts) bool {
	for el := range amounts {
		if !s.Contains(el) {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether every element of s is in other.
func (s ChemicalSystem) IsSubsetOf(other ChemicalSystem) bool {
	for _, el := range s.elements {
		if !other.Contains(el) {
			return false
		}
	}
	return true
}

// Equal reports whether both systems have the same elements.
func (s ChemicalSystem) Equal(other ChemicalSystem) bool {
	return s.String() == other.String()
}

// Subsystems returns all 2^k-1 non-empty subsystems, the system itself
// included, ordered by size and then lexicographically within a size.
//
// For Fe-Li-O that is Fe, Li, O, Fe-Li, Fe-O, Li-O, Fe-Li-O.
func (s ChemicalSystem) Subsystems() []ChemicalSystem {
	k := len(s.elements)
	out := make([]ChemicalSystem, 0, (1<<k)-1)
	for size := 1; size <= k; size++ {
		combo := make([]int, size)
		for i := range combo {
			combo[i] = i
		}
		for {
			els := make([]string, size)
			for i, idx := range combo {
				els[i] = s.elements[idx]
			}
			out = append(out, ChemicalSystem{elements: els})

			// Advance to the next combination in lexicographic order.
			i := size - 1
			for i >= 0 && combo[i] == k-size+i {
				i--
			}
			if i < 0 {
				break
			}
			combo[i]++
			for j := i + 1; j < size; j++ {
				combo[j] = combo[j-1] + 1
			}
		}
	}
	return out
}

// SubsystemNames returns the canonical names of Subsystems.
func (s ChemicalSystem) SubsystemNames() []string {
	subs := s.Subsystems()
	names := make([]string, len(subs))
	for i, sub := range subs {
		names[i] = sub.String()
	}
	return names
}
