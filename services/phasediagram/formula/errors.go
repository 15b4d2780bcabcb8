// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package formula parses chemical formula strings into element amounts.
//
// A formula such as "Fe2O3", "Ca(OH)2", "Li0.5CoO2" or "CuSO4·5H2O" becomes
// an Amounts map of element symbol to stoichiometric count. Counts are
// floats so non-stoichiometric formulas survive parsing unchanged.
//
// # Grammar
//
//	formula  := segment ( ('·' | '*') segment )*
//	segment  := number? group+
//	group    := element number? | open formula close number?
//	element  := Upper lower*
//	number   := digits ( '.' digits )? | '.' digits
//
// Parentheses, brackets and braces may be nested. Whitespace is ignored.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package formula

import "errors"

// Sentinel errors for formula parsing.
var (
	// ErrMalformedFormula is returned when the input does not follow the
	// element-symbol-then-optional-number grammar, including unbalanced
	// groups and non-positive counts.
	ErrMalformedFormula = errors.New("malformed formula")

	// ErrUnknownElement is returned, wrapped together with
	// ErrMalformedFormula, when a token is shaped like an element symbol but
	// is not one of the periodic-table entries.
	ErrUnknownElement = errors.New("unrecognized element symbol")
)
