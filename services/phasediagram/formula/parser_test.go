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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    Amounts
	}{
		{"single element", "Fe", Amounts{"Fe": 1}},
		{"binary oxide", "Fe2O3", Amounts{"Fe": 2, "O": 3}},
		{"diatomic", "O2", Amounts{"O": 2}},
		{"repeated element summed", "CH3COOH", Amounts{"C": 2, "H": 4, "O": 2}},
		{"parentheses", "Ca(OH)2", Amounts{"Ca": 1, "O": 2, "H": 2}},
		{"nested groups", "K4[Fe(CN)6]", Amounts{"K": 4, "Fe": 1, "C": 6, "N": 6}},
		{"braces", "{NH4}2SO4", Amounts{"N": 2, "H": 8, "S": 1, "O": 4}},
		{"fractional", "Li0.5CoO2", Amounts{"Li": 0.5, "Co": 1, "O": 2}},
		{"leading decimal", "Fe.5O", Amounts{"Fe": 0.5, "O": 1}},
		{"hydrate", "CuSO4·5H2O", Amounts{"Cu": 1, "S": 1, "O": 9, "H": 10}},
		{"hydrate asterisk", "CaSO4*2H2O", Amounts{"Ca": 1, "S": 1, "O": 6, "H": 4}},
		{"whitespace ignored", "  Fe2 O3 ", Amounts{"Fe": 2, "O": 3}},
		{"case distinguishes symbols", "CO", Amounts{"C": 1, "O": 1}},
		{"two letter symbol", "Co", Amounts{"Co": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.formula)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for el, n := range tt.want {
				assert.InDelta(t, n, got[el], 1e-12, "element %s", el)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		formula     string
		wantUnknown bool
	}{
		{"empty", "", false},
		{"only spaces", "   ", false},
		{"lowercase start", "fe2O3", false},
		{"unknown symbol", "Xx2O", true},
		{"unknown long symbol", "Fee", true},
		{"unbalanced open", "Ca(OH2", false},
		{"unbalanced close", "CaOH)2", false},
		{"mismatched brackets", "Ca(OH]2", false},
		{"empty group", "Ca()2", false},
		{"zero count", "Fe0O", false},
		{"bare number", "23", false},
		{"stray punctuation", "Fe2-O3", false},
		{"double dot", "Fe1.2.3", false},
		{"trailing separator", "CuSO4·", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.formula)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFormula)
			if tt.wantUnknown {
				assert.ErrorIs(t, err, ErrUnknownElement)
			}
		})
	}
}

func TestParse_DeepNestingRejected(t *testing.T) {
	formula := ""
	for i := 0; i < maxGroupDepth+2; i++ {
		formula += "("
	}
	formula += "H"
	for i := 0; i < maxGroupDepth+2; i++ {
		formula += ")"
	}

	_, err := Parse(formula)
	assert.ErrorIs(t, err, ErrMalformedFormula)
}

func TestIsElement(t *testing.T) {
	assert.True(t, IsElement("Fe"))
	assert.True(t, IsElement("O"))
	assert.True(t, IsElement("Og"))
	assert.False(t, IsElement("FE"))
	assert.False(t, IsElement("fe"))
	assert.False(t, IsElement("Xx"))
	assert.False(t, IsElement(""))

	assert.Equal(t, 26, AtomicNumber("Fe"))
	assert.Equal(t, 118, AtomicNumber("Og"))
	assert.Equal(t, 0, AtomicNumber("Xx"))
	assert.Len(t, symbols, 118)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("Q") })
	assert.NotPanics(t, func() { MustParse("NaCl") })
}
