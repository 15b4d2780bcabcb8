// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMaterialID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"materials project", "mp-19770", false},
		{"oqmd", "oqmd-1234", false},
		{"underscore", "icsd_56789", false},
		{"dotted", "mvc.12", false},
		{"single char", "a", false},
		{"max length", strings.Repeat("a", 64), false},

		{"empty", "", true},
		{"reference prefix", "ref:Fe", true},
		{"sql injection", "mp-1'; DROP TABLE materials--", true},
		{"newline", "mp-1\nmp-2", true},
		{"spaces", "mp 1", true},
		{"too long", strings.Repeat("a", 65), true},
		{"leading hyphen", "-mp", true},
		{"unicode", "mp-1™", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMaterialID(tt.id)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateMaterialID(%q) = %v", tt.id, err)
		})
	}
}

func TestValidateMaterialIDs(t *testing.T) {
	assert.NoError(t, ValidateMaterialIDs(nil))
	assert.NoError(t, ValidateMaterialIDs([]string{"mp-1", "mp-2"}))

	err := ValidateMaterialIDs([]string{"mp-1", "bad id", "ref:O"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "bad id")
		assert.Contains(t, err.Error(), "ref:O")
	}
}

func TestSanitizeMaterialID(t *testing.T) {
	got, err := SanitizeMaterialID("  mp-13 ")
	assert.NoError(t, err)
	assert.Equal(t, "mp-13", got)

	_, err = SanitizeMaterialID("   ")
	assert.Error(t, err)
}
