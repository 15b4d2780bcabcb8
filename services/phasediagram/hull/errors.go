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

import "errors"

var (
	// ErrInsufficientPoints is returned when fewer points than elements
	// are supplied, so the composition simplex cannot be spanned.
	ErrInsufficientPoints = errors.New("insufficient points for hull construction")

	// ErrDegenerateGeometry is returned when even the dimension-reduced
	// hull cannot be built.
	ErrDegenerateGeometry = errors.New("degenerate hull geometry")

	// ErrCompositionOutsideHullSpan is returned by EnergyAt for a
	// composition outside the convex span of the hull's points.
	ErrCompositionOutsideHullSpan = errors.New("composition outside hull span")

	// ErrInvalidInput is returned for mismatched coordinate dimensions,
	// non-finite values, duplicate identifiers and bad options.
	ErrInvalidInput = errors.New("invalid hull input")
)
