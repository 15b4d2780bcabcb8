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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
)

func TestParseChemicalSystem(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "sorted", input: "Fe-O", want: "Fe-O"},
		{name: "unsorted", input: "O-Li-Fe", want: "Fe-Li-O"},
		{name: "duplicates", input: "O-Fe-O", want: "Fe-O"},
		{name: "spaces", input: " Fe - O ", want: "Fe-O"},
		{name: "single element", input: "Fe", want: "Fe"},
		{name: "empty", input: "", wantErr: true},
		{name: "trailing separator", input: "Fe-", wantErr: true},
		{name: "unknown element", input: "Fe-Xx", wantErr: true},
		{name: "lowercase", input: "fe-o", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys, err := ParseChemicalSystem(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSystem)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sys.String())
		})
	}
}

func TestParseBounded(t *testing.T) {
	_, err := ParseBounded("Fe")
	assert.ErrorIs(t, err, ErrInvalidSystem, "one element is below the boundary")

	_, err = ParseBounded("Fe-O-Li-Mn-Co-Ni")
	assert.ErrorIs(t, err, ErrInvalidSystem, "six elements is above the boundary")

	sys, err := ParseBounded("Fe-O-Li-Mn-Co")
	require.NoError(t, err)
	assert.Equal(t, 5, sys.Len())
	assert.Equal(t, "Co-Fe-Li-Mn-O", sys.String())

	// Duplicates collapse before the size check.
	_, err = ParseBounded("Fe-Fe")
	assert.ErrorIs(t, err, ErrInvalidSystem)
}

func TestChemicalSystem_Subsystems(t *testing.T) {
	sys, err := ParseChemicalSystem("Fe-Li-O")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"Fe", "Li", "O", "Fe-Li", "Fe-O", "Li-O", "Fe-Li-O"},
		sys.SubsystemNames())

	for k := 1; k <= 5; k++ {
		els := []string{"Co", "Fe", "Li", "Mn", "O"}[:k]
		s, err := NewChemicalSystem(els...)
		require.NoError(t, err)
		subs := s.Subsystems()
		assert.Len(t, subs, (1<<k)-1, "size %d", k)

		seen := map[string]bool{}
		for _, sub := range subs {
			assert.True(t, sub.IsSubsetOf(s))
			assert.False(t, seen[sub.String()], "duplicate subsystem %s", sub)
			seen[sub.String()] = true
		}
	}
}

func TestChemicalSystem_Membership(t *testing.T) {
	sys, err := ParseChemicalSystem("Fe-O")
	require.NoError(t, err)
	other, err := ParseChemicalSystem("Fe-Li-O")
	require.NoError(t, err)

	assert.Equal(t, 0, sys.Index("Fe"))
	assert.Equal(t, 1, sys.Index("O"))
	assert.Equal(t, -1, sys.Index("Li"))
	assert.True(t, sys.IsSubsetOf(other))
	assert.False(t, other.IsSubsetOf(sys))
	assert.True(t, sys.Covers(formula.Amounts{"Fe": 2, "O": 3}))
	assert.False(t, sys.Covers(formula.Amounts{"Li": 1, "O": 1}))
	assert.True(t, sys.Equal(mustSystem(t, "O-Fe")))

	els := sys.Elements()
	els[0] = "Zn"
	assert.Equal(t, "Fe-O", sys.String(), "Elements returns a copy")
}

func TestSystemOf(t *testing.T) {
	sys, err := SystemOf(formula.MustParse("LiFePO4"))
	require.NoError(t, err)
	assert.Equal(t, "Fe-Li-O-P", sys.String())
}

func mustSystem(t *testing.T, s string) ChemicalSystem {
	t.Helper()
	sys, err := ParseChemicalSystem(s)
	require.NoError(t, err)
	return sys
}
