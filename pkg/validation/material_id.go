// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that reach
// SQL queries, cache keys and log lines.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// materialIDPattern matches database material identifiers such as
// "mp-19770", "oqmd-1234" or "icsd_56789".
// Colons are excluded: synthesized elemental references use "ref:El".
var materialIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateMaterialID validates a material identifier.
//
// Valid identifiers:
//   - 1-64 characters
//   - Start with a letter or digit
//   - Letters, digits, dots, underscores and hyphens
//
// Example:
//
//	if err := validation.ValidateMaterialID(id); err != nil {
//	    return fmt.Errorf("invalid material: %w", err)
//	}
func ValidateMaterialID(id string) error {
	if id == "" {
		return fmt.Errorf("material id cannot be empty")
	}
	if !materialIDPattern.MatchString(id) {
		return fmt.Errorf("invalid material id %q (1-64 letters, digits, '.', '_' or '-')", id)
	}
	return nil
}

// ValidateMaterialIDs returns an error listing every invalid id.
func ValidateMaterialIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateMaterialID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid material ids: %q", invalid)
	}
	return nil
}

// SanitizeMaterialID trims surrounding whitespace and validates the result.
func SanitizeMaterialID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateMaterialID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
