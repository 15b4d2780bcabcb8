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

import "errors"

// Sentinel errors for chemical systems and composition mapping.
var (
	// ErrInvalidSystem is returned when a chemical system string is empty,
	// contains an unknown element, or has a size outside the allowed range.
	ErrInvalidSystem = errors.New("invalid chemical system")

	// ErrCompositionOutOfSystem is returned when a composition contains an
	// element that is not part of the space's chemical system.
	ErrCompositionOutOfSystem = errors.New("composition contains elements outside the chemical system")

	// ErrInvalidComposition is returned for empty compositions, non-positive
	// amounts and non-finite energies.
	ErrInvalidComposition = errors.New("invalid composition")
)
